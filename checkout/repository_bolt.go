package checkout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/boltdb/bolt"
)

var (
	chargesBucket  = []byte("charges")
	chargeIDBucket = []byte("charge_ids")
)

// NewBoltRepository opens (or creates) the bolt file at path and makes sure
// the buckets exist.
func NewBoltRepository(path string) (*Repository, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{chargesBucket, chargeIDBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{kv: db, now: time.Now}, nil
}

func (r *Repository) kvSaveCharge(rec *models.ChargeRecord) error {
	key := []byte(recordKey(rec.ProcessorID, rec.ExternalTransactionID))

	return r.kv.Update(func(tx *bolt.Tx) error {
		charges := tx.Bucket(chargesBucket)
		ids := tx.Bucket(chargeIDBucket)

		if v := charges.Get(key); v != nil {
			var existing models.ChargeRecord
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			merge(&existing, rec)
			*rec = existing
		} else if ids.Get([]byte(rec.ID)) != nil {
			return fmt.Errorf("record id %s exists: %w", rec.ID, ErrConflict)
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := ids.Put([]byte(rec.ID), key); err != nil {
			return err
		}
		return charges.Put(key, data)
	})
}

func (r *Repository) kvGetCharge(processor models.ProcessorID, externalID string) (*models.ChargeRecord, error) {
	var rec models.ChargeRecord

	err := r.kv.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chargesBucket).Get([]byte(recordKey(processor, externalID)))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) kvListByApplication(applicationReferenceID string) ([]*models.ChargeRecord, error) {
	var out []*models.ChargeRecord

	err := r.kv.View(func(tx *bolt.Tx) error {
		return tx.Bucket(chargesBucket).ForEach(func(k, v []byte) error {
			var rec models.ChargeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.ApplicationReferenceID == applicationReferenceID {
				out = append(out, &rec)
			}
			return nil
		})
	})
	return out, err
}
