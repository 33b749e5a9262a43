package slate

import "time"

// Sweeper periodically purges expired records across every collection.
// It is the background counterpart to Txn.Purge: a Database that never
// starts one simply never expires documents proactively, leaving expiry
// to each query's own visibility check (a read never sees an expired
// record) and to explicit Purge calls.
type Sweeper struct {
	db       *Database
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// StartSweeper spawns a background goroutine that purges every
// collection's expired records once per interval, until Stop is called.
// A purge failure for one tick is swallowed rather than stopping the
// loop — a transient store error shouldn't end TTL enforcement for the
// lifetime of the process — the next tick tries again.
func (db *Database) StartSweeper(interval time.Duration) *Sweeper {
	s := &Sweeper{db: db, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
	go s.run()
	return s
}

func (s *Sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() error {
	txn, err := s.db.Begin(false)
	if err != nil {
		return err
	}
	collections, err := txn.ListCollections()
	if err != nil {
		txn.Rollback()
		return err
	}
	for _, c := range collections {
		if _, err := txn.Purge(c.Name); err != nil {
			txn.Rollback()
			return err
		}
	}
	return txn.Commit()
}

// Stop signals the sweeper's goroutine to exit and waits for it to
// finish its current tick, if any. Safe to call once; a second call
// panics, since it closes the already-closed stop channel again.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
