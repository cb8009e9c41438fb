package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/repository"
)

// ClickHouseBackend adapts a repository.EventRepository to the Backend
// interface so raw event queries run through the same executor pipeline
// (caching, optimization, metrics) as any other backend.
type ClickHouseBackend struct {
	conn   *repository.ClickHouseConn
	events repository.EventRepository
}

// NewClickHouseBackend wraps a ClickHouse connection as a query backend.
func NewClickHouseBackend(conn *repository.ClickHouseConn) *ClickHouseBackend {
	return &ClickHouseBackend{
		conn:   conn,
		events: repository.NewClickHouseEventRepository(conn),
	}
}

func (b *ClickHouseBackend) Execute(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	start := time.Now()

	switch req.Type {
	case QueryTypeTimeSeries:
		return b.executeTimeline(ctx, req, start)
	case QueryTypeAggregate:
		return b.executeAggregate(ctx, req, start)
	default:
		return b.executeRaw(ctx, req, start)
	}
}

func (b *ClickHouseBackend) executeRaw(ctx context.Context, req *QueryRequest, start time.Time) (*QueryResult, error) {
	rows, err := b.events.Query(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	return &QueryResult{
		Status:      QueryStatusCompleted,
		Rows:        rows,
		RowCount:    int64(len(rows)),
		TotalCount:  int64(len(rows)),
		Columns:     columnsFromRows(rows),
		ExecutionMS: time.Since(start).Milliseconds(),
	}, nil
}

func (b *ClickHouseBackend) executeAggregate(ctx context.Context, req *QueryRequest, start time.Time) (*QueryResult, error) {
	field, _ := req.Parameters["field"].(string)
	limit := 100
	if l, ok := req.Parameters["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	counts, err := b.events.CountByField(ctx, filterFromParams(req), field, limit)
	if err != nil {
		return nil, fmt.Errorf("aggregate query: %w", err)
	}

	rows := make([]map[string]interface{}, 0, len(counts))
	for value, count := range counts {
		rows = append(rows, map[string]interface{}{field: value, "count": count})
	}

	return &QueryResult{
		Status:      QueryStatusCompleted,
		Rows:        rows,
		RowCount:    int64(len(rows)),
		TotalCount:  int64(len(rows)),
		ExecutionMS: time.Since(start).Milliseconds(),
	}, nil
}

func (b *ClickHouseBackend) executeTimeline(ctx context.Context, req *QueryRequest, start time.Time) (*QueryResult, error) {
	interval, _ := req.Parameters["interval"].(string)
	if interval == "" {
		interval = "hour"
	}

	points, err := b.events.Timeline(ctx, filterFromParams(req), interval)
	if err != nil {
		return nil, fmt.Errorf("timeline query: %w", err)
	}

	rows := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		rows = append(rows, map[string]interface{}{"time": p.Time, "count": p.Count})
	}

	return &QueryResult{
		Status:      QueryStatusCompleted,
		Rows:        rows,
		RowCount:    int64(len(rows)),
		TotalCount:  int64(len(rows)),
		ExecutionMS: time.Since(start).Milliseconds(),
	}, nil
}

func (b *ClickHouseBackend) Health(ctx context.Context) error {
	if !b.conn.IsHealthy(ctx) {
		return fmt.Errorf("clickhouse backend unhealthy")
	}
	return nil
}

func (b *ClickHouseBackend) Close() error {
	return b.conn.Close()
}

func filterFromParams(req *QueryRequest) repository.EventFilter {
	filter := repository.EventFilter{TenantID: req.TenantID}
	if sq, ok := req.Parameters["search"].(string); ok {
		filter.SearchQuery = sq
	}
	return filter
}

func columnsFromRows(rows []map[string]interface{}) []ColumnInfo {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]ColumnInfo, 0, len(rows[0]))
	for name := range rows[0] {
		cols = append(cols, ColumnInfo{Name: name, Nullable: true})
	}
	return cols
}
