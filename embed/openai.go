package embed

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/hupe1980/vectable/distance"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// OpenAI embedding models.
const (
	// ModelOpenAI3Small is the small embedding model (1536 dims, customizable).
	ModelOpenAI3Small = "text-embedding-3-small"

	// ModelOpenAI3Large is the large embedding model (3072 dims, customizable).
	ModelOpenAI3Large = "text-embedding-3-large"

	// ModelOpenAIAda002 is the legacy model (1536 dims, fixed).
	ModelOpenAIAda002 = "text-embedding-ada-002"
)

const (
	openAIMaxBatch     = 2048 // OpenAI supports up to 2048 inputs per request
	openAIDefaultDim   = 1536
	openAIDefaultModel = ModelOpenAI3Small
)

// OpenAI implements [Embedder] using the OpenAI embeddings API.
//
// This can also be used with any OpenAI-compatible provider by setting
// WithBaseURL.
type OpenAI struct {
	client    *openai.Client
	baseURL   string
	model     string
	dim       int
	batchSize int
	normalize bool
	limiter   *rate.Limiter
	closed    atomic.Bool
}

var _ Embedder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	cfg := config{
		model:      openAIDefaultModel,
		dim:        openAIDefaultDim,
		httpClient: http.DefaultClient,
		batchSize:  openAIMaxBatch,
		maxRetries: 2,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.batchSize <= 0 || cfg.batchSize > openAIMaxBatch {
		cfg.batchSize = openAIMaxBatch
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAI{
		client:    &client,
		baseURL:   cfg.baseURL,
		model:     cfg.model,
		dim:       cfg.dim,
		batchSize: cfg.batchSize,
		normalize: cfg.normalize,
		limiter:   cfg.limiter,
	}
}

// Embed returns embeddings for multiple texts. Large inputs are split into
// batches of at most the configured batch size.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	result := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += o.batchSize {
		end := min(i+o.batchSize, len(texts))

		vecs, err := o.callAPI(ctx, texts[i:end])
		if err != nil {
			return nil, &Error{Start: i, End: end, Err: err}
		}
		copy(result[i:], vecs)
	}
	return result, nil
}

// Dimension returns the configured vector dimensionality.
func (o *OpenAI) Dimension() int {
	return o.dim
}

// Name identifies the model together with every setting that changes its
// output, e.g. "openai-text-embedding-3-small-384-true". A custom base URL
// is appended after "@".
func (o *OpenAI) Name() string {
	name := fmt.Sprintf("openai-%s-%d-%t", o.model, o.dim, o.normalize)
	if o.baseURL != "" {
		name += "@" + o.baseURL
	}
	return name
}

// Close implements Embedder.
func (o *OpenAI) Close() error {
	o.closed.Store(true)
	return nil
}

func (o *OpenAI) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("text %d: %w", i, ErrEmptyInput)
		}
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if o.model != ModelOpenAIAda002 {
		params.Dimensions = openai.Int(int64(o.dim))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", idx, len(texts))
		}
		if len(item.Embedding) != o.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", idx, len(item.Embedding), o.dim)
		}
		vec := float64sToFloat32s(item.Embedding)
		if o.normalize {
			distance.NormalizeL2InPlace(vec)
		}
		vecs[idx] = vec
	}

	// Verify all slots are filled.
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}

// float64sToFloat32s converts a []float64 to []float32.
func float64sToFloat32s(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
