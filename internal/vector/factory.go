package vector

import "fmt"

// Metric is the similarity function an index was built with.
type Metric string

const (
	// MetricCosine normalizes stored and query vectors and ranks by their dot product.
	MetricCosine Metric = "cosine"
	// MetricInnerProduct ranks by raw dot product. Use it when the embedding model
	// already returns unit vectors or when magnitude is meaningful.
	MetricInnerProduct Metric = "inner_product"
)

// ParseMetric maps a config value to a Metric. Empty selects cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, "":
		return MetricCosine, nil
	case MetricInnerProduct:
		return MetricInnerProduct, nil
	default:
		return "", fmt.Errorf("unknown similarity metric: %s (supported: cosine, inner_product)", s)
	}
}
