package recall

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chatbi/chatbi/internal/catalog"
)

// QdrantRecaller is the vector path: metric definitions are embedded and
// upserted into a Qdrant collection, queries are matched by cosine distance.
type QdrantRecaller struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
}

func NewQdrantRecaller(client *qdrant.Client, collection string, embedder Embedder) *QdrantRecaller {
	return &QdrantRecaller{client: client, collection: collection, embedder: embedder}
}

func (r *QdrantRecaller) EnsureCollection(ctx context.Context, dim uint64) error {
	_, err := r.client.GetCollectionInfo(ctx, r.collection)
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.NotFound {
		return fmt.Errorf("get collection %s: %w", r.collection, err)
	}
	if err := r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return fmt.Errorf("create collection %s: %w", r.collection, err)
	}
	return nil
}

// IndexMetrics embeds every catalog metric (name, description, and synonyms
// concatenated) and upserts the points keyed by a stable numeric id.
func (r *QdrantRecaller) IndexMetrics(ctx context.Context, metrics []catalog.Metric) error {
	points := make([]*qdrant.PointStruct, 0, len(metrics))
	for i, metric := range metrics {
		text := embeddingText(metric)
		vector, err := r.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed metric %s: %w", metric.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(i + 1)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"metric_id":   metric.ID,
				"metric_name": metric.Name,
				"metric_code": metric.Code,
				"description": metric.Description,
				"domain":      metric.Domain,
			}),
		})
	}
	if _, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upsert metric points: %w", err)
	}
	return nil
}

func (r *QdrantRecaller) Recall(ctx context.Context, query string, topK int) ([]Candidate, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", r.collection, err)
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		payload := hit.Payload
		score := float64(hit.Score)
		candidates = append(candidates, Candidate{
			MetricID:    payload["metric_id"].GetStringValue(),
			Name:        payload["metric_name"].GetStringValue(),
			Code:        payload["metric_code"].GetStringValue(),
			Description: payload["description"].GetStringValue(),
			Domain:      payload["domain"].GetStringValue(),
			Score:       score,
			Source:      SourceVector,
			VectorScore: score,
		})
	}
	return candidates, nil
}

func embeddingText(metric catalog.Metric) string {
	parts := []string{metric.Name, metric.NameEN, metric.Description}
	parts = append(parts, metric.Synonyms...)
	return strings.Join(parts, " ")
}
