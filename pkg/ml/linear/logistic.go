package linear

import (
	"errors"
	"math"
)

type Options struct {
	Epochs       int
	LearningRate float64
}

type Weights struct {
	Bias         float64   `json:"bias"`
	Coefficients []float64 `json:"coefficients"`
}

// Scaler standardizes features as (x - mean) / scale. A zero scale passes the
// centred value through unchanged.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

type Metrics struct {
	Loss     float64
	Accuracy float64
}

var ErrDimension = errors.New("feature dimension mismatch")

func FitScaler(samples [][]float64) Scaler {
	if len(samples) == 0 {
		return Scaler{}
	}
	dim := len(samples[0])
	mean := make([]float64, dim)
	scale := make([]float64, dim)
	for _, s := range samples {
		for j := 0; j < dim; j++ {
			mean[j] += s[j]
		}
	}
	n := float64(len(samples))
	for j := range mean {
		mean[j] /= n
	}
	for _, s := range samples {
		for j := 0; j < dim; j++ {
			d := s[j] - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
	}
	return Scaler{Mean: mean, Scale: scale}
}

func (s Scaler) Transform(sample []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return sample, nil
	}
	if len(sample) != len(s.Mean) || len(s.Scale) != len(s.Mean) {
		return nil, ErrDimension
	}
	out := make([]float64, len(sample))
	for i, v := range sample {
		out[i] = v - s.Mean[i]
		if s.Scale[i] != 0 {
			out[i] /= s.Scale[i]
		}
	}
	return out, nil
}

func TrainLogistic(samples [][]float64, labels []float64, opts Options) (Weights, Metrics) {
	if opts.Epochs <= 0 {
		opts.Epochs = 200
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.01
	}

	n := len(samples)
	if n == 0 {
		return Weights{}, Metrics{}
	}
	featureCount := len(samples[0])
	weights := make([]float64, featureCount)
	var bias float64

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		grad := make([]float64, featureCount)
		var biasGrad float64
		for i, sample := range samples {
			diff := sigmoid(dot(weights, sample)+bias) - labels[i]
			for j := 0; j < featureCount; j++ {
				grad[j] += diff * sample[j]
			}
			biasGrad += diff
		}
		for j := 0; j < featureCount; j++ {
			weights[j] -= opts.LearningRate * grad[j] / float64(n)
		}
		bias -= opts.LearningRate * biasGrad / float64(n)
	}

	loss, accuracy := evaluate(weights, bias, samples, labels)
	return Weights{Bias: bias, Coefficients: weights}, Metrics{Loss: loss, Accuracy: accuracy}
}

// Predict returns the positive-class probability for sample.
func Predict(weights Weights, sample []float64) (float64, error) {
	if len(sample) != len(weights.Coefficients) {
		return 0, ErrDimension
	}
	return sigmoid(dot(weights.Coefficients, sample) + weights.Bias), nil
}

func dot(weights []float64, sample []float64) float64 {
	var sum float64
	for i := 0; i < len(weights); i++ {
		sum += weights[i] * sample[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func evaluate(weights []float64, bias float64, samples [][]float64, labels []float64) (float64, float64) {
	var loss float64
	var correct int
	for i, sample := range samples {
		prediction := sigmoid(dot(weights, sample) + bias)
		loss += -labels[i]*math.Log(prediction+1e-9) - (1-labels[i])*math.Log(1-prediction+1e-9)
		if (prediction >= 0.5 && labels[i] == 1) || (prediction < 0.5 && labels[i] == 0) {
			correct++
		}
	}
	loss /= float64(len(samples))
	accuracy := float64(correct) / float64(len(samples))
	return loss, accuracy
}
