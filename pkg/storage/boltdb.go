package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"
)

var (
	// Bucket names
	bucketResources        = []byte("resources")
	bucketRequests         = []byte("requests")
	bucketAllocations      = []byte("allocations")
	bucketReservations     = []byte("reservations")
	bucketReservationIndex = []byte("reservation_index")
	bucketMeta             = []byte("meta")

	keyRevision = []byte("revision")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db       *bolt.DB
	revision atomic.Uint64
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &BoltStore{db: db}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketResources,
			bucketRequests,
			bucketAllocations,
			bucketReservations,
			bucketReservationIndex,
			bucketMeta,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		s.revision.Store(readRevision(tx))
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Revision returns the revision of the last applied change set
func (s *BoltStore) Revision() uint64 {
	return s.revision.Load()
}

// View runs fn inside one read transaction
func (s *BoltStore) View(fn func(Reader) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltReader{tx: tx})
	})
}

// ApplyChanges writes the change set in a single transaction
func (s *BoltStore) ApplyChanges(changes *ChangeSet) error {
	if changes.IsEmpty() {
		return nil
	}
	var revision uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, id := range changes.DeleteReservations {
			if err := deleteReservation(tx, id); err != nil {
				return err
			}
		}
		for _, id := range changes.DeleteRequests {
			if err := tx.Bucket(bucketRequests).Delete([]byte(id)); err != nil {
				return err
			}
		}
		for _, id := range changes.DeleteAllocations {
			if err := tx.Bucket(bucketAllocations).Delete([]byte(id)); err != nil {
				return err
			}
		}
		for _, id := range changes.DeleteResources {
			if err := tx.Bucket(bucketResources).Delete([]byte(id)); err != nil {
				return err
			}
		}
		for _, resource := range changes.PutResources {
			if err := put(tx.Bucket(bucketResources), resource.ID, resource); err != nil {
				return err
			}
		}
		for _, r := range changes.PutRequests {
			if err := put(tx.Bucket(bucketRequests), r.ID, r); err != nil {
				return err
			}
		}
		for _, allocation := range changes.PutAllocations {
			if err := put(tx.Bucket(bucketAllocations), allocation.ID, allocation); err != nil {
				return err
			}
		}
		for _, reservation := range changes.PutReservations {
			if err := putReservation(tx, reservation); err != nil {
				return err
			}
		}

		revision = readRevision(tx) + 1
		return tx.Bucket(bucketMeta).Put(keyRevision, encodeUint64(revision))
	})
	if err != nil {
		return fmt.Errorf("failed to apply changes: %w", err)
	}
	s.revision.Store(revision)
	return nil
}

// Reindex drops and rebuilds the reservation interval index
func (s *BoltStore) Reindex() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketReservationIndex); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		index, err := tx.CreateBucket(bucketReservationIndex)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketReservations).ForEach(func(k, v []byte) error {
			var reservation types.Reservation
			if err := json.Unmarshal(v, &reservation); err != nil {
				return err
			}
			if reservation.TargetID == "" {
				return nil
			}
			return index.Put(indexKey(&reservation), nil)
		})
	})
}

// Backup writes a consistent copy of the database to path
func (s *BoltStore) Backup(path string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

// IndexReport compares the reservation index with the reservations bucket
type IndexReport struct {
	Reservations int // reservations occupying a target
	Indexed      int // index entries matching a reservation
	Missing      int // reservations without an index entry
	Stale        int // index entries without a reservation
}

// Consistent reports whether the index needs no rebuild
func (r IndexReport) Consistent() bool {
	return r.Missing == 0 && r.Stale == 0
}

// CheckIndex compares the reservation index with the reservations bucket
// without changing either.
func (s *BoltStore) CheckIndex() (IndexReport, error) {
	var report IndexReport
	err := s.db.View(func(tx *bolt.Tx) error {
		expected := make(map[string]bool)
		err := tx.Bucket(bucketReservations).ForEach(func(k, v []byte) error {
			var reservation types.Reservation
			if err := json.Unmarshal(v, &reservation); err != nil {
				return fmt.Errorf("reservation %s: %w", k, err)
			}
			if reservation.TargetID != "" {
				expected[string(indexKey(&reservation))] = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		report.Reservations = len(expected)

		err = tx.Bucket(bucketReservationIndex).ForEach(func(k, _ []byte) error {
			if expected[string(k)] {
				report.Indexed++
			} else {
				report.Stale++
			}
			return nil
		})
		report.Missing = report.Reservations - report.Indexed
		return err
	})
	return report, err
}

// Read helpers bound to the latest committed state

func (s *BoltStore) GetResource(id string) (resource *types.Resource, err error) {
	err = s.View(func(r Reader) error {
		resource, err = r.GetResource(id)
		return err
	})
	return resource, err
}

func (s *BoltStore) ListResources() (resources []*types.Resource, err error) {
	err = s.View(func(r Reader) error {
		resources, err = r.ListResources()
		return err
	})
	return resources, err
}

func (s *BoltStore) GetRequest(id string) (req *request.ReservationRequest, err error) {
	err = s.View(func(r Reader) error {
		req, err = r.GetRequest(id)
		return err
	})
	return req, err
}

func (s *BoltStore) ListRequests() (requests []*request.ReservationRequest, err error) {
	err = s.View(func(r Reader) error {
		requests, err = r.ListRequests()
		return err
	})
	return requests, err
}

func (s *BoltStore) ListChildRequests(parentAllocationID string) (requests []*request.ReservationRequest, err error) {
	err = s.View(func(r Reader) error {
		requests, err = r.ListChildRequests(parentAllocationID)
		return err
	})
	return requests, err
}

func (s *BoltStore) GetAllocation(id string) (allocation *types.Allocation, err error) {
	err = s.View(func(r Reader) error {
		allocation, err = r.GetAllocation(id)
		return err
	})
	return allocation, err
}

func (s *BoltStore) ListAllocations() (allocations []*types.Allocation, err error) {
	err = s.View(func(r Reader) error {
		allocations, err = r.ListAllocations()
		return err
	})
	return allocations, err
}

func (s *BoltStore) IsAllocationReused(allocationID string) (reused bool, err error) {
	err = s.View(func(r Reader) error {
		reused, err = r.IsAllocationReused(allocationID)
		return err
	})
	return reused, err
}

func (s *BoltStore) GetReservation(id string) (reservation *types.Reservation, err error) {
	err = s.View(func(r Reader) error {
		reservation, err = r.GetReservation(id)
		return err
	})
	return reservation, err
}

func (s *BoltStore) ListReservations() (reservations []*types.Reservation, err error) {
	err = s.View(func(r Reader) error {
		reservations, err = r.ListReservations()
		return err
	})
	return reservations, err
}

func (s *BoltStore) ListReservationsByAllocation(allocationID string) (reservations []*types.Reservation, err error) {
	err = s.View(func(r Reader) error {
		reservations, err = r.ListReservationsByAllocation(allocationID)
		return err
	})
	return reservations, err
}

func (s *BoltStore) ListOverlapping(targetID string, slot types.Interval) (reservations []*types.Reservation, err error) {
	err = s.View(func(r Reader) error {
		reservations, err = r.ListOverlapping(targetID, slot)
		return err
	})
	return reservations, err
}

// boltReader implements Reader over one transaction
type boltReader struct {
	tx *bolt.Tx
}

func (r *boltReader) Revision() uint64 {
	return readRevision(r.tx)
}

func (r *boltReader) GetResource(id string) (*types.Resource, error) {
	var resource types.Resource
	if err := get(r.tx.Bucket(bucketResources), id, &resource); err != nil {
		return nil, lookupError("resource", id, err)
	}
	return &resource, nil
}

// ListResources returns resources in declaration order
func (r *boltReader) ListResources() ([]*types.Resource, error) {
	resources, err := list[types.Resource](r.tx.Bucket(bucketResources), nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].CreatedAt.Before(resources[j].CreatedAt)
	})
	return resources, nil
}

func (r *boltReader) GetRequest(id string) (*request.ReservationRequest, error) {
	var req request.ReservationRequest
	if err := get(r.tx.Bucket(bucketRequests), id, &req); err != nil {
		return nil, lookupError("request", id, err)
	}
	return &req, nil
}

func (r *boltReader) ListRequests() ([]*request.ReservationRequest, error) {
	return list[request.ReservationRequest](r.tx.Bucket(bucketRequests), nil)
}

func (r *boltReader) ListChildRequests(parentAllocationID string) ([]*request.ReservationRequest, error) {
	return list(r.tx.Bucket(bucketRequests), func(req *request.ReservationRequest) bool {
		return req.ParentAllocationID == parentAllocationID && req.State == request.StateActive
	})
}

func (r *boltReader) GetAllocation(id string) (*types.Allocation, error) {
	var allocation types.Allocation
	if err := get(r.tx.Bucket(bucketAllocations), id, &allocation); err != nil {
		return nil, lookupError("allocation", id, err)
	}
	return &allocation, nil
}

func (r *boltReader) ListAllocations() ([]*types.Allocation, error) {
	return list[types.Allocation](r.tx.Bucket(bucketAllocations), nil)
}

func (r *boltReader) IsAllocationReused(allocationID string) (bool, error) {
	reusing, err := list(r.tx.Bucket(bucketReservations), func(res *types.Reservation) bool {
		return res.Existing != nil && res.Existing.AllocationID == allocationID && res.AllocationID != allocationID
	})
	return len(reusing) > 0, err
}

func (r *boltReader) GetReservation(id string) (*types.Reservation, error) {
	var reservation types.Reservation
	if err := get(r.tx.Bucket(bucketReservations), id, &reservation); err != nil {
		return nil, lookupError("reservation", id, err)
	}
	return &reservation, nil
}

func (r *boltReader) ListReservations() ([]*types.Reservation, error) {
	return list[types.Reservation](r.tx.Bucket(bucketReservations), nil)
}

func (r *boltReader) ListReservationsByAllocation(allocationID string) ([]*types.Reservation, error) {
	return list(r.tx.Bucket(bucketReservations), func(res *types.Reservation) bool {
		return res.AllocationID == allocationID
	})
}

// ListOverlapping walks the interval index of targetID in start order and
// stops at the first reservation starting at or after the slot end.
func (r *boltReader) ListOverlapping(targetID string, slot types.Interval) ([]*types.Reservation, error) {
	var result []*types.Reservation
	prefix := append([]byte(targetID), 0)
	end := encodeTime(slot.End)
	c := r.tx.Bucket(bucketReservationIndex).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		rest := k[len(prefix):]
		if len(rest) < 9 {
			continue
		}
		if bytes.Compare(rest[:8], end) >= 0 {
			break
		}
		reservation, err := r.GetReservation(string(rest[9:]))
		if err != nil {
			return nil, err
		}
		if reservation.Slot.Overlaps(slot) {
			result = append(result, reservation)
		}
	}
	return result, nil
}

func lookupError(entity, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %w: %s", entity, ErrNotFound, id)
	}
	return fmt.Errorf("failed to read %s %s: %w", entity, id, err)
}

func get(b *bolt.Bucket, id string, v interface{}) error {
	data := b.Get([]byte(id))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func put(b *bolt.Bucket, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), data)
}

func list[T any](b *bolt.Bucket, filter func(*T) bool) ([]*T, error) {
	var items []*T
	err := b.ForEach(func(k, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		if filter == nil || filter(&item) {
			items = append(items, &item)
		}
		return nil
	})
	return items, err
}

func putReservation(tx *bolt.Tx, reservation *types.Reservation) error {
	if err := unindex(tx, reservation.ID); err != nil {
		return err
	}
	if err := put(tx.Bucket(bucketReservations), reservation.ID, reservation); err != nil {
		return err
	}
	if reservation.TargetID == "" {
		return nil
	}
	return tx.Bucket(bucketReservationIndex).Put(indexKey(reservation), nil)
}

func deleteReservation(tx *bolt.Tx, id string) error {
	if err := unindex(tx, id); err != nil {
		return err
	}
	return tx.Bucket(bucketReservations).Delete([]byte(id))
}

// unindex removes the index entry of the stored version of reservation id
func unindex(tx *bolt.Tx, id string) error {
	data := tx.Bucket(bucketReservations).Get([]byte(id))
	if data == nil {
		return nil
	}
	var previous types.Reservation
	if err := json.Unmarshal(data, &previous); err != nil {
		return err
	}
	if previous.TargetID == "" {
		return nil
	}
	return tx.Bucket(bucketReservationIndex).Delete(indexKey(&previous))
}

// indexKey is target \x00 start \x00 id, with start encoded so that byte
// order matches time order.
func indexKey(reservation *types.Reservation) []byte {
	key := make([]byte, 0, len(reservation.TargetID)+len(reservation.ID)+10)
	key = append(key, reservation.TargetID...)
	key = append(key, 0)
	key = append(key, encodeTime(reservation.Slot.Start)...)
	key = append(key, 0)
	key = append(key, reservation.ID...)
	return key
}

func encodeTime(t time.Time) []byte {
	return encodeUint64(uint64(t.UnixNano()) ^ (1 << 63))
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func readRevision(tx *bolt.Tx) uint64 {
	data := tx.Bucket(bucketMeta).Get(keyRevision)
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}
