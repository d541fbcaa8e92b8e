// Package qdrant implements vector.Index on a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jacklau/repolens/internal/vector"
)

// Payload keys.
const (
	keyRepository = "repository_id"
	keyFileName   = "file_name"
	keySource     = "source_code"
	keySummary    = "summary"
	keyDegraded   = "degraded"
)

// pointNamespace derives deterministic point ids so that re-ingesting a file
// overwrites its previous point.
var pointNamespace = uuid.MustParse("6f1c2a7e-3d1b-4c55-9a0e-2b7f4d8c9e10")

// Index stores code embeddings as points of a single cosine collection.
// Degraded rows are kept as placeholder points flagged in the payload and
// excluded from search.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   int
}

// Open connects to a Qdrant gRPC endpoint and creates the collection and its
// repository payload index when missing.
func Open(ctx context.Context, addr, collection string, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be positive, got %d", dimension)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	idx := newWithConn(conn, collection, dimension)
	if err := idx.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return idx, nil
}

func newWithConn(conn *grpc.ClientConn, collection string, dimension int) *Index {
	if collection == "" {
		collection = "code_embeddings"
	}
	return &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dimension:   dimension,
	}
}

// Close closes the gRPC connection.
func (x *Index) Close() error {
	return x.conn.Close()
}

func (x *Index) ensureCollection(ctx context.Context) error {
	exists, err := x.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: x.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}

	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(x.dimension),
			Distance: pb.Distance_Cosine,
		}}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}

	_, err = x.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: x.collection,
		FieldName:      keyRepository,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant create field index: %w", err)
	}
	return nil
}

// PointID returns the deterministic point id of a (repository, file) pair.
func PointID(repositoryID, fileName string) string {
	return uuid.NewSHA1(pointNamespace, []byte(repositoryID+"\x00"+fileName)).String()
}

// Upsert writes the point for (repository, file).
func (x *Index) Upsert(ctx context.Context, e vector.CodeEmbedding) error {
	if err := e.Validate(); err != nil {
		return err
	}

	vec := e.Vector
	if e.Degraded {
		vec = x.placeholder()
	} else if len(vec) != x.dimension {
		return fmt.Errorf("%w: got %d, collection holds %d", vector.ErrDimensionMismatch, len(vec), x.dimension)
	}

	point := &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(e.RepositoryID, e.FileName)}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}}},
		Payload: map[string]*pb.Value{
			keyRepository: stringValue(e.RepositoryID),
			keyFileName:   stringValue(e.FileName),
			keySource:     stringValue(vector.BoundSource(e.SourceCode)),
			keySummary:    stringValue(e.Summary),
			keyDegraded:   {Kind: &pb.Value_BoolValue{BoolValue: e.Degraded}},
		},
	}

	wait := true
	_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", e.FileName, err)
	}
	return nil
}

// Search queries the collection filtered to the repository's non-degraded
// points.
func (x *Index) Search(ctx context.Context, q vector.Query) ([]vector.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q = q.WithDefaults()
	if len(q.Vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection holds %d", vector.ErrDimensionMismatch, len(q.Vector), x.dimension)
	}

	threshold := float32(q.MinSimilarity())
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         q.Vector,
		Limit:          uint64(q.Limit),
		Filter:         searchFilter(q.RepositoryID),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]vector.Match, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		payload := pt.GetPayload()
		matches = append(matches, vector.Match{
			FileName:   payload[keyFileName].GetStringValue(),
			SourceCode: payload[keySource].GetStringValue(),
			Summary:    payload[keySummary].GetStringValue(),
			Similarity: float64(pt.GetScore()),
		})
	}
	// Qdrant's threshold is inclusive.
	return vector.Rank(matches, q.MinSimilarity(), q.Limit), nil
}

// DeleteRepository removes every point of the repository.
func (x *Index) DeleteRepository(ctx context.Context, repositoryID string) error {
	wait := true
	_, err := x.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Filter{
			Filter: &pb.Filter{Must: []*pb.Condition{keywordCondition(keyRepository, repositoryID)}},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete repository: %w", err)
	}
	return nil
}

// Count reports the number of points and degraded points of a repository.
func (x *Index) Count(ctx context.Context, repositoryID string) (int, int, error) {
	total, err := x.count(ctx, &pb.Filter{Must: []*pb.Condition{keywordCondition(keyRepository, repositoryID)}})
	if err != nil {
		return 0, 0, err
	}
	degraded, err := x.count(ctx, &pb.Filter{Must: []*pb.Condition{
		keywordCondition(keyRepository, repositoryID),
		boolCondition(keyDegraded, true),
	}})
	if err != nil {
		return 0, 0, err
	}
	return total, degraded, nil
}

func (x *Index) count(ctx context.Context, filter *pb.Filter) (int, error) {
	exact := true
	resp, err := x.points.Count(ctx, &pb.CountPoints{
		CollectionName: x.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// placeholder is a unit vector stored for degraded points.
func (x *Index) placeholder() []float32 {
	v := make([]float32, x.dimension)
	v[0] = 1
	return v
}

func searchFilter(repositoryID string) *pb.Filter {
	return &pb.Filter{
		Must:    []*pb.Condition{keywordCondition(keyRepository, repositoryID)},
		MustNot: []*pb.Condition{boolCondition(keyDegraded, true)},
	}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
		Key:   key,
		Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
	}}}
}

func boolCondition(key string, value bool) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
		Key:   key,
		Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: value}},
	}}}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

var _ vector.Index = (*Index)(nil)
