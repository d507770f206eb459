package evaluation

import (
	"github.com/fitbench/fitbench/internal/ml"
)

// MLBackends serves the metric collaborators from an ml.Service.
type MLBackends struct {
	svc        *ml.Service
	compatPath string
	features   ml.FeatureTable
}

// NewMLBackends returns backends that load ONNX models on first use.
func NewMLBackends(svc *ml.Service, compatPath string, features ml.FeatureTable) *MLBackends {
	return &MLBackends{svc: svc, compatPath: compatPath, features: features}
}

func (b *MLBackends) ImageEmbedder() (ImageEmbedder, error) {
	enc, err := b.svc.ImageEncoder()
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func (b *MLBackends) TextEmbedder() (TextEmbedder, error) {
	enc, err := b.svc.TextEncoder()
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func (b *MLBackends) PerceptualMetric() (PerceptualMetric, error) {
	m, err := b.svc.LPIPS()
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (b *MLBackends) CompatibilityModel() (CompatibilityModel, error) {
	m, err := b.svc.Compatibility(b.compatPath, b.features)
	if err != nil {
		return nil, err
	}
	return m, nil
}
