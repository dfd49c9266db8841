package store

import (
	"context"
	"fmt"

	"eventtriage/internal/scoring"
)

// LoadTables reads the attack_type_weights and critical_ports lookup tables.
// Only the maps are populated; empty tables yield empty maps.
func (s *Store) LoadTables(ctx context.Context) (scoring.Tables, error) {
	t := scoring.Tables{
		AttackTypes: map[string]float64{},
		Ports:       map[int]scoring.PortEntry{},
	}
	err := s.run(ctx, "load_tables", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT attack_type, weight FROM attack_type_weights`)
		if err != nil {
			return fmt.Errorf("select attack weights: %w", err)
		}
		for rows.Next() {
			var label string
			var w float64
			if err := rows.Scan(&label, &w); err != nil {
				rows.Close()
				return err
			}
			t.AttackTypes[label] = w
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		rows, err = s.db.QueryContext(ctx, `SELECT port_number, service_name, criticality_score FROM critical_ports`)
		if err != nil {
			return fmt.Errorf("select critical ports: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var port int
			var e scoring.PortEntry
			if err := rows.Scan(&port, &e.Service, &e.Score); err != nil {
				return err
			}
			t.Ports[port] = e
		}
		return rows.Err()
	})
	if err != nil {
		return scoring.Tables{}, err
	}
	return t, nil
}

// SeedTables upserts every entry of t into the lookup tables.
func (s *Store) SeedTables(ctx context.Context, t scoring.Tables) error {
	return s.run(ctx, "seed_tables", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for label, w := range t.AttackTypes {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO attack_type_weights (attack_type, weight) VALUES (?, ?)
ON CONFLICT(attack_type) DO UPDATE SET weight = excluded.weight`, label, w); err != nil {
				return fmt.Errorf("upsert attack weight %q: %w", label, err)
			}
		}
		for port, e := range t.Ports {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO critical_ports (port_number, service_name, criticality_score) VALUES (?, ?, ?)
ON CONFLICT(port_number) DO UPDATE SET service_name = excluded.service_name, criticality_score = excluded.criticality_score`,
				port, e.Service, e.Score); err != nil {
				return fmt.Errorf("upsert critical port %d: %w", port, err)
			}
		}
		return tx.Commit()
	})
}
