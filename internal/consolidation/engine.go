// Package consolidation discovers recurring patterns in the episode corpus
// and persists them as abstractions.
package consolidation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/similarity"
	"github.com/fyrsmithlabs/reflexd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/reflexd/internal/consolidation"

// Default clustering parameters, matching the retrieval vectorization.
const (
	// DefaultEps is the cosine-distance neighborhood radius.
	DefaultEps = 0.5

	// DefaultMinSamples is the minimum cluster size.
	DefaultMinSamples = 2
)

// Engine runs density-based clustering over the episode corpus and owns the
// abstractions relation.
type Engine struct {
	db     *store.DB
	logger *zap.Logger
}

// NewEngine creates a consolidation engine on the shared database.
func NewEngine(db *store.DB, logger *zap.Logger) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, logger: logger}, nil
}

// Consolidate clusters the full corpus with neighborhood radius eps and
// minimum cluster size minSamples, replacing the stored abstractions
// wholesale.
//
// The corpus snapshot is read inside the same exclusive transaction that
// writes the result, so a concurrent append can never invalidate the member
// ids of the persisted clusters. Episodes not assigned to any sufficiently
// dense neighborhood are discarded as noise.
func (e *Engine) Consolidate(ctx context.Context, eps float64, minSamples int) (*Outcome, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "consolidation.consolidate")
	defer span.End()

	if eps <= 0 {
		eps = DefaultEps
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	span.SetAttributes(
		attribute.Float64("eps", eps),
		attribute.Int("min_samples", minSamples),
	)

	var outcome *Outcome
	err := e.db.Write(ctx, func(tx *sql.Tx) error {
		ids, texts, err := loadCorpus(ctx, tx)
		if err != nil {
			return err
		}

		if len(ids) < minSamples {
			outcome = &Outcome{Consolidated: false, Reason: ReasonInsufficientData}
			return nil
		}

		model := similarity.Fit(texts)
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = model.Transform(text)
		}

		labels := dbscan(vectors, eps, minSamples)

		clusters := make(map[int][]int)
		for i, label := range labels {
			if label == noise {
				continue
			}
			clusters[label] = append(clusters[label], i)
		}

		formedAt := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, "DELETE FROM abstractions"); err != nil {
			return fmt.Errorf("clearing abstractions: %w", err)
		}

		labelsInOrder := make([]int, 0, len(clusters))
		for label := range clusters {
			labelsInOrder = append(labelsInOrder, label)
		}
		sort.Ints(labelsInOrder)

		for _, label := range labelsInOrder {
			memberIdx := clusters[label]
			members := make([]int64, len(memberIdx))
			memberTexts := make([]string, len(memberIdx))
			for i, idx := range memberIdx {
				members[i] = ids[idx]
				memberTexts[i] = texts[idx]
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO abstractions (cluster_id, label, members, formed_at) VALUES (?, ?, ?, ?)",
				uuid.New().String(), labelFor(memberTexts), joinIDs(members), formedAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("persisting cluster: %w", err)
			}
		}

		outcome = &Outcome{Consolidated: true, ClustersFormed: len(clusters)}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("consolidating: %w", err)
	}

	e.logger.Info("consolidation finished",
		zap.Bool("consolidated", outcome.Consolidated),
		zap.Int("clusters_formed", outcome.ClustersFormed),
		zap.String("reason", outcome.Reason),
	)
	span.SetAttributes(attribute.Int("clusters_formed", outcome.ClustersFormed))
	return outcome, nil
}

// Abstractions returns the current abstraction set.
func (e *Engine) Abstractions(ctx context.Context) ([]Abstraction, error) {
	rows, err := e.db.Reader().QueryContext(ctx,
		"SELECT cluster_id, label, members, formed_at FROM abstractions ORDER BY rowid ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying abstractions: %w", err)
	}
	defer rows.Close()

	abstractions := []Abstraction{}
	for rows.Next() {
		var (
			a       Abstraction
			members string
			ms      int64
		)
		if err := rows.Scan(&a.ClusterID, &a.Label, &members, &ms); err != nil {
			return nil, fmt.Errorf("scanning abstraction: %w", err)
		}
		a.Members, err = splitIDs(members)
		if err != nil {
			return nil, fmt.Errorf("parsing members of cluster %s: %w", a.ClusterID, err)
		}
		a.FormedAt = time.UnixMilli(ms).UTC()
		abstractions = append(abstractions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating abstractions: %w", err)
	}
	return abstractions, nil
}

func loadCorpus(ctx context.Context, tx *sql.Tx) ([]int64, []string, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, task, reflection FROM episodes ORDER BY id ASC",
	)
	if err != nil {
		return nil, nil, fmt.Errorf("loading corpus: %w", err)
	}
	defer rows.Close()

	var (
		ids   []int64
		texts []string
	)
	for rows.Next() {
		var (
			id               int64
			task, reflection string
		)
		if err := rows.Scan(&id, &task, &reflection); err != nil {
			return nil, nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		text := task
		if reflection != "" {
			text += " " + reflection
		}
		ids = append(ids, id)
		texts = append(texts, text)
	}
	return ids, texts, rows.Err()
}

// labelFor builds a representative label from the most frequent word tokens
// of the member texts. Ties are broken alphabetically so labels are stable.
func labelFor(texts []string) string {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, word := range similarity.Words(text) {
			counts[word]++
		}
	}

	type termCount struct {
		term  string
		count int
	}
	ranked := make([]termCount, 0, len(counts))
	for term, count := range counts {
		ranked = append(ranked, termCount{term, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].term < ranked[j].term
	})

	n := 3
	if len(ranked) < n {
		n = len(ranked)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = ranked[i].term
	}
	return strings.Join(parts, " ")
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]int64, error) {
	if s == "" {
		return []int64{}, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, len(parts))
	for i, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
