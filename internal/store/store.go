// Package store persists registered proteins in SQLite. Snapshots are only
// ever restored through the registry so reloaded data is validated again.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"jbio/internal/bioerr"
	"jbio/internal/chain"
	"jbio/internal/protein"
	"jbio/internal/registry"
	"jbio/internal/residue"
)

const schema = `
CREATE TABLE IF NOT EXISTS proteins (
	accession  TEXT PRIMARY KEY,
	revision   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chains (
	accession TEXT NOT NULL REFERENCES proteins(accession) ON DELETE CASCADE,
	chain_id  TEXT NOT NULL,
	position  INTEGER NOT NULL,
	codes     TEXT NOT NULL,
	props     TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (accession, chain_id)
);`

// Store is a SQLite-backed snapshot of the registry.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Summary is one row of List.
type Summary struct {
	Accession string    `json:"accession"`
	Chains    string    `json:"chains"`
	Revision  string    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway store.
func Open(path string, logger *log.Logger) (*Store, error) {
	const op = "store.Open"
	if logger == nil {
		logger = log.New(io.Discard)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, bioerr.Retrieval(op, err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, bioerr.Retrieval(op, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, bioerr.Retrieval(op, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(accession string) string {
	return strings.ToUpper(strings.TrimSpace(accession))
}

// propsJSON maps property name to per-residue values; null marks an unset
// value.
func propsJSON(c *chain.Chain) (string, error) {
	out := make(map[string][]*float64)
	rs := c.Residues()
	for _, p := range residue.Properties() {
		vals := make([]*float64, len(rs))
		set := false
		for i, r := range rs {
			if v, ok := r.Property(p); ok {
				v := v
				vals[i] = &v
				set = true
			}
		}
		if set {
			out[p.String()] = vals
		}
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func restoreProps(p residue.Property, vals []*float64) chain.Option {
	return func(id byte, rs []residue.Residue) error {
		if len(vals) != len(rs) {
			return &bioerr.Error{Kind: bioerr.LengthMismatch, Op: "store.Load", Chain: id, Index: bioerr.NoIndex, Length: len(rs), Other: len(vals)}
		}
		for i, v := range vals {
			if v == nil {
				continue
			}
			r, err := rs[i].WithProperty(p, *v)
			if err != nil {
				e := err.(*bioerr.Error)
				e.Chain = id
				e.Index = i
				return e
			}
			rs[i] = r
		}
		return nil
	}
}

// Save replaces the snapshot of p.
func (s *Store) Save(ctx context.Context, p *protein.Protein, revision string) error {
	const op = "store.Save"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return bioerr.Retrieval(op, err)
	}
	defer tx.Rollback()

	acc := key(p.Accession())
	if _, err := tx.ExecContext(ctx, `DELETE FROM chains WHERE accession = ?`, acc); err != nil {
		return bioerr.Retrieval(op, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO proteins (accession, revision, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(accession) DO UPDATE SET revision = excluded.revision, updated_at = excluded.updated_at`,
		acc, revision, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return bioerr.Retrieval(op, err)
	}
	for i, c := range p.AllChains() {
		props, err := propsJSON(c)
		if err != nil {
			return bioerr.Retrieval(op, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chains (accession, chain_id, position, codes, props) VALUES (?, ?, ?, ?, ?)`,
			acc, string(c.ID()), i, c.Codes(), props); err != nil {
			return bioerr.Retrieval(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return bioerr.Retrieval(op, err)
	}
	s.logger.Debug("protein saved", "accession", acc, "chains", len(p.ChainIDs()), "revision", revision)
	return nil
}

// Load rebuilds the stored aggregate. A stored chain that no longer passes
// construction (bad code, property out of range) fails the load.
func (s *Store) Load(ctx context.Context, accession string) (*protein.Protein, error) {
	const op = "store.Load"
	acc := key(accession)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM proteins WHERE accession = ?`, acc).Scan(&n); err != nil {
		return nil, bioerr.Retrieval(op, err)
	}
	if n == 0 {
		return nil, &bioerr.Error{Kind: bioerr.UnrecognizedProtein, Op: op, Protein: accession, Index: bioerr.NoIndex}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chain_id, codes, props FROM chains WHERE accession = ? ORDER BY position`, acc)
	if err != nil {
		return nil, bioerr.Retrieval(op, err)
	}
	defer rows.Close()

	var chains []*chain.Chain
	for rows.Next() {
		var id, codes, props string
		if err := rows.Scan(&id, &codes, &props); err != nil {
			return nil, bioerr.Retrieval(op, err)
		}
		if len(id) != 1 {
			return nil, &bioerr.Error{Kind: bioerr.MissingData, Op: op, Protein: acc, Index: bioerr.NoIndex, Msg: "bad chain id " + id}
		}
		var stored map[string][]*float64
		if err := json.Unmarshal([]byte(props), &stored); err != nil {
			return nil, bioerr.Retrieval(op, err)
		}
		var opts []chain.Option
		for name, vals := range stored {
			p, ok := residue.ParseProperty(name)
			if !ok {
				return nil, &bioerr.Error{Kind: bioerr.MissingData, Op: op, Protein: acc, Chain: id[0], Index: bioerr.NoIndex, Msg: "unknown property " + name}
			}
			opts = append(opts, restoreProps(p, vals))
		}
		c, err := chain.New(id[0], codes, opts...)
		if err != nil {
			if e, ok := bioerr.As(err); ok {
				e.Protein = acc
			}
			return nil, err
		}
		chains = append(chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, bioerr.Retrieval(op, err)
	}
	return protein.New(acc, chains...)
}

// List returns every stored protein, ordered by accession. Chains lists the
// chain ids in registration order.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	const op = "store.List"
	rows, err := s.db.QueryContext(ctx, `SELECT accession, revision, updated_at FROM proteins ORDER BY accession`)
	if err != nil {
		return nil, bioerr.Retrieval(op, err)
	}
	var out []Summary
	index := make(map[string]int)
	for rows.Next() {
		var sum Summary
		var updated string
		if err := rows.Scan(&sum.Accession, &sum.Revision, &updated); err != nil {
			rows.Close()
			return nil, bioerr.Retrieval(op, err)
		}
		sum.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		index[sum.Accession] = len(out)
		out = append(out, sum)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, bioerr.Retrieval(op, err)
	}

	// the pool holds one connection, so the first result set is drained first
	rows, err = s.db.QueryContext(ctx, `SELECT accession, chain_id FROM chains ORDER BY accession, position`)
	if err != nil {
		return nil, bioerr.Retrieval(op, err)
	}
	defer rows.Close()
	for rows.Next() {
		var acc, id string
		if err := rows.Scan(&acc, &id); err != nil {
			return nil, bioerr.Retrieval(op, err)
		}
		if i, ok := index[acc]; ok {
			out[i].Chains += id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, bioerr.Retrieval(op, err)
	}
	return out, nil
}

// Delete removes a stored protein and reports whether it existed.
func (s *Store) Delete(ctx context.Context, accession string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM proteins WHERE accession = ?`, key(accession))
	if err != nil {
		return false, bioerr.Retrieval("store.Delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, bioerr.Retrieval("store.Delete", err)
	}
	return n > 0, nil
}

// SaveRegistry snapshots every protein registered in r.
func (s *Store) SaveRegistry(ctx context.Context, r *registry.Registry) (int, error) {
	saved := 0
	for _, acc := range r.Accessions() {
		p, rev, err := r.Snapshot(acc)
		if err != nil {
			return saved, err
		}
		if err := s.Save(ctx, p, rev); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// Restore commits every stored protein into r. Proteins r already holds are
// validated chain by chain; the first conflict stops the restore.
func (s *Store) Restore(ctx context.Context, r *registry.Registry) (int, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, sum := range list {
		p, err := s.Load(ctx, sum.Accession)
		if err != nil {
			return restored, err
		}
		if _, err := r.CommitProtein(p); err != nil {
			return restored, err
		}
		restored++
	}
	s.logger.Info("registry restored", "proteins", restored)
	return restored, nil
}
