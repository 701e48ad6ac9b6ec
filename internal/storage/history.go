package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"riskform/internal/features"
)

// Record is one stored prediction.
type Record struct {
	ID           string              `json:"id"`
	CreatedAt    time.Time           `json:"created_at"`
	Mode         string              `json:"mode"`
	Row          features.FeatureRow `json:"row"`
	Label        string              `json:"label,omitempty"`
	Probability  float64             `json:"probability,omitempty"`
	Attributions []float64           `json:"attributions,omitempty"`
	BaseValue    float64             `json:"base_value,omitempty"`
}

func recordKey(r *Record) []byte {
	return []byte(fmt.Sprintf("%020d_%s", r.CreatedAt.UnixNano(), r.ID))
}

// Save stores a record, assigning an ID and creation time when unset, and
// returns the stored copy.
func (s *Store) Save(rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("marshal record: %w", err)
	}
	key := recordKey(&rec)

	err = s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(indexBucket))
		if idx.Get([]byte(rec.ID)) != nil {
			return fmt.Errorf("record %s already exists", rec.ID)
		}
		if err := tx.Bucket([]byte(predictionsBucket)).Put(key, data); err != nil {
			return err
		}
		return idx.Put([]byte(rec.ID), key)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the record with the given ID or ErrNotFound.
func (s *Store) Get(id string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(indexBucket)).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket([]byte(predictionsBucket)).Get(key)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(n int) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// Range returns records created within [start, end], oldest first.
func (s *Store) Range(start, end time.Time) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d~", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && string(k) <= string(endKey); k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// ExportCSV writes every record, oldest first, as CSV with one column per
// feature in the given order.
func (s *Store) ExportCSV(w io.Writer, columns []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader(columns)); err != nil {
		return err
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(predictionsBucket)).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			return cw.Write(csvLine(&rec, columns))
		})
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSV writes the given records in the ExportCSV layout.
func WriteCSV(w io.Writer, columns []string, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader(columns)); err != nil {
		return err
	}
	for i := range records {
		if err := cw.Write(csvLine(&records[i], columns)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvHeader(columns []string) []string {
	return append([]string{"id", "created_at", "mode", "label", "probability"}, columns...)
}

// csvLine leaves the probability empty for label-mode records and a feature
// cell empty when the stored row lacks that column.
func csvLine(rec *Record, columns []string) []string {
	line := []string{
		rec.ID,
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.Mode,
		rec.Label,
		"",
	}
	if rec.Mode == "probability" {
		line[4] = strconv.FormatFloat(rec.Probability, 'f', 4, 64)
	}
	for _, name := range columns {
		if v, ok := rec.Row.Get(name); ok {
			line = append(line, strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			line = append(line, "")
		}
	}
	return line
}
