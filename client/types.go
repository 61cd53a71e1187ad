package client

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"
)

// Vector is a dense vector as sent to the upsert endpoint.
type Vector struct {
	ID       uint64         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Session holds the bearer token issued by /auth/create-session.
type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time
}

// FlexibleID decodes identifiers the server may send either as a JSON string
// or a JSON number.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := gojson.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n gojson.Number
	if err := gojson.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

func (id FlexibleID) String() string { return string(id) }

// DenseVectorConfig configures the dense vector space of a collection.
type DenseVectorConfig struct {
	Enabled         bool `json:"enabled"`
	AutoCreateIndex bool `json:"auto_create_index"`
	Dimension       int  `json:"dimension"`
}

// SparseVectorConfig configures the sparse vector space of a collection.
type SparseVectorConfig struct {
	Enabled         bool `json:"enabled"`
	AutoCreateIndex bool `json:"auto_create_index"`
}

// CollectionConfig holds optional server-side limits; nil means server default.
type CollectionConfig struct {
	MaxVectors        *int `json:"max_vectors"`
	ReplicationFactor *int `json:"replication_factor"`
}

// CollectionSpec is the body of POST /vectordb/collections.
type CollectionSpec struct {
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	DenseVector    DenseVectorConfig  `json:"dense_vector"`
	SparseVector   SparseVectorConfig `json:"sparse_vector"`
	MetadataSchema any                `json:"metadata_schema"`
	Config         CollectionConfig   `json:"config"`
}

// NewCollectionSpec returns a dense-only collection without automatic indexing.
func NewCollectionSpec(name, description string, dimension int) CollectionSpec {
	return CollectionSpec{
		Name:        name,
		Description: description,
		DenseVector: DenseVectorConfig{
			Enabled:   true,
			Dimension: dimension,
		},
	}
}

// Collection is the subset of collection metadata the load tester reads back.
type Collection struct {
	ID          FlexibleID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

// QuantizationProperties tunes automatic quantization.
type QuantizationProperties struct {
	SampleThreshold int `json:"sample_threshold"`
}

// Quantization selects the quantization scheme of an index.
type Quantization struct {
	Type       string                 `json:"type"`
	Properties QuantizationProperties `json:"properties"`
}

// HNSWProperties are the graph parameters of a dense HNSW index.
type HNSWProperties struct {
	NumLayers            int `json:"num_layers"`
	MaxCacheSize         int `json:"max_cache_size"`
	EfConstruction       int `json:"ef_construction"`
	EfSearch             int `json:"ef_search"`
	NeighborsCount       int `json:"neighbors_count"`
	Layer0NeighborsCount int `json:"layer_0_neighbors_count"`
}

// IndexDefinition names the index algorithm and its parameters.
type IndexDefinition struct {
	Type       string         `json:"type"`
	Properties HNSWProperties `json:"properties"`
}

// IndexSpec is the body of POST /vectordb/collections/{name}/indexes/dense.
type IndexSpec struct {
	Name               string          `json:"name"`
	DistanceMetricType string          `json:"distance_metric_type"`
	Quantization       Quantization    `json:"quantization"`
	Index              IndexDefinition `json:"index"`
}

// DefaultIndexSpec returns a cosine HNSW index with auto quantization.
func DefaultIndexSpec(collection string) IndexSpec {
	return IndexSpec{
		Name:               collection,
		DistanceMetricType: "cosine",
		Quantization: Quantization{
			Type:       "auto",
			Properties: QuantizationProperties{SampleThreshold: 100},
		},
		Index: IndexDefinition{
			Type: "hnsw",
			Properties: HNSWProperties{
				NumLayers:            7,
				MaxCacheSize:         1000,
				EfConstruction:       512,
				EfSearch:             256,
				NeighborsCount:       32,
				Layer0NeighborsCount: 64,
			},
		},
	}
}

// SearchRequest is the body of POST /vectordb/search.
type SearchRequest struct {
	Collection string    `json:"vector_db_name"`
	Vector     []float32 `json:"vector"`
	K          int       `json:"nn_count"`
}

// Neighbor is one approximate nearest-neighbour hit.
type Neighbor struct {
	ID    uint64
	Score float32
}

type searchResponse struct {
	RespVectorKNN struct {
		KNN []gojson.RawMessage `json:"knn"`
	} `json:"RespVectorKNN"`
}

// parseNeighbor accepts [id, {"CosineSimilarity": s}], [id, s] and
// {"id": id, "score": s}.
func parseNeighbor(raw gojson.RawMessage) (Neighbor, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Neighbor{}, fmt.Errorf("empty neighbor entry")
	}

	if raw[0] == '[' {
		var pair []gojson.RawMessage
		if err := gojson.Unmarshal(raw, &pair); err != nil {
			return Neighbor{}, err
		}
		if len(pair) != 2 {
			return Neighbor{}, fmt.Errorf("neighbor entry has %d elements, want 2", len(pair))
		}
		id, err := parseVectorID(pair[0])
		if err != nil {
			return Neighbor{}, err
		}
		score, err := parseScore(pair[1])
		if err != nil {
			return Neighbor{}, err
		}
		return Neighbor{ID: id, Score: score}, nil
	}

	var obj struct {
		ID         gojson.RawMessage `json:"id"`
		Score      *float32          `json:"score"`
		Similarity *float32          `json:"similarity"`
	}
	if err := gojson.Unmarshal(raw, &obj); err != nil {
		return Neighbor{}, err
	}
	id, err := parseVectorID(obj.ID)
	if err != nil {
		return Neighbor{}, err
	}
	n := Neighbor{ID: id}
	switch {
	case obj.Score != nil:
		n.Score = *obj.Score
	case obj.Similarity != nil:
		n.Score = *obj.Similarity
	}
	return n, nil
}

func parseVectorID(raw gojson.RawMessage) (uint64, error) {
	var id FlexibleID
	if err := gojson.Unmarshal(raw, &id); err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(id.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("vector id %q is not an unsigned integer", id)
	}
	return v, nil
}

func parseScore(raw gojson.RawMessage) (float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var metrics map[string]float32
		if err := gojson.Unmarshal(raw, &metrics); err != nil {
			return 0, err
		}
		for _, v := range metrics {
			return v, nil
		}
		return 0, fmt.Errorf("neighbor score object is empty")
	}
	var v float32
	if err := gojson.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}
