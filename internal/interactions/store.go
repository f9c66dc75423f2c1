package interactions

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errDuplicateKey reports that a concurrent creator won the record-insert
// race. The caller converts the loss into an append against the winner's row.
var errDuplicateKey = errors.New("interactions: duplicate record key")

// storeTx exposes the history store contract against one transaction. The
// database-level unique index on record_id remains the final authority on
// (user, property) uniqueness; the lookup-then-act path above it is an
// optimization.
type storeTx struct {
	tx *gorm.DB
}

// findByKey loads the record for the pair, row-locked, with its full history
// in sequence order. Returns (nil, nil) when absent.
func (s storeTx) findByKey(userID UserID, propertyID PropertyID) (*Record, error) {
	var record Record
	err := s.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND property_id = ?", userID.String(), propertyID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.tx.
		Where("record_id = ?", record.RecordID).
		Order("seq ASC").
		Find(&record.History).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// createWithFirstEntry inserts the record and its seed entry. A unique-index
// violation surfaces as errDuplicateKey.
func (s storeTx) createWithFirstEntry(userID UserID, propertyID PropertyID, entry HistoryEntry) (*Record, error) {
	record := Record{
		RecordID:   StorageKey(userID, propertyID),
		UserID:     userID.String(),
		PropertyID: propertyID.String(),
	}
	if err := s.tx.Create(&record).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, errDuplicateKey
		}
		return nil, err
	}

	entry.RecordID = record.RecordID
	if err := s.tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	record.History = []HistoryEntry{entry}
	return &record, nil
}

// appendEntry persists one new history entry for the record. The entry's
// sequence number was derived from the row-locked last entry, so two appends
// cannot land on the same slot.
func (s storeTx) appendEntry(record *Record, entry HistoryEntry) error {
	entry.RecordID = record.RecordID
	if err := s.tx.Create(&entry).Error; err != nil {
		if isDuplicateKeyError(err) {
			return errDuplicateKey
		}
		return err
	}
	record.History = append(record.History, entry)
	return nil
}

// deleteAllForUser removes every record and history row belonging to the user
// and reports the number of records removed.
func (s storeTx) deleteAllForUser(userID UserID) (int64, error) {
	recordIDs := s.tx.Model(&Record{}).
		Select("record_id").
		Where("user_id = ?", userID.String())
	if err := s.tx.Where("record_id IN (?)", recordIDs).Delete(&HistoryEntry{}).Error; err != nil {
		return 0, err
	}

	result := s.tx.Where("user_id = ?", userID.String()).Delete(&Record{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// listForUser loads every record for the user with history attached, in
// storage order.
func (s storeTx) listForUser(userID UserID) ([]Record, error) {
	var records []Record
	if err := s.tx.
		Where("user_id = ?", userID.String()).
		Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	recordIDs := make([]string, 0, len(records))
	for _, record := range records {
		recordIDs = append(recordIDs, record.RecordID)
	}

	var entries []HistoryEntry
	if err := s.tx.
		Where("record_id IN ?", recordIDs).
		Order("record_id ASC, seq ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}

	byRecord := make(map[string][]HistoryEntry, len(records))
	for _, entry := range entries {
		byRecord[entry.RecordID] = append(byRecord[entry.RecordID], entry)
	}
	for index := range records {
		records[index].History = byRecord[records[index].RecordID]
	}
	return records, nil
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// The sqlite driver does not translate every constraint failure.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
