// Package dlib computes face embeddings with dlib through go-face.
//
// The models directory must contain:
//   - shape_predictor_5_face_landmarks.dat
//   - dlib_face_recognition_resnet_model_v1.dat
//   - mmod_human_face_detector.dat (only with UseCNN)
package dlib

import (
	"errors"
	"fmt"
	"image"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facegate/internal/vision"
)

// Recognizer implements vision.FaceEmbedder and vision.FaceRecognizer.
type Recognizer struct {
	rec *face.Recognizer
	// UseCNN selects the MMOD CNN detector instead of HOG.
	UseCNN bool
}

// New loads the models from modelDir.
func New(modelDir string) (*Recognizer, error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load models from %s: %w", modelDir, err)
	}
	return &Recognizer{rec: rec}, nil
}

// Close releases the dlib models.
func (r *Recognizer) Close() {
	r.rec.Close()
}

func (r *Recognizer) recognize(f vision.Frame) ([]face.Face, error) {
	// go-face decodes JPEG into RGB itself.
	data, err := f.Encode(".jpg")
	if err != nil {
		return nil, err
	}
	if r.UseCNN {
		return r.rec.RecognizeCNN(data)
	}
	return r.rec.Recognize(data)
}

// Recognize detects all faces in f and returns them with their descriptors.
func (r *Recognizer) Recognize(f vision.Frame) ([]vision.Face, error) {
	faces, err := r.recognize(f)
	if err != nil {
		return nil, err
	}
	out := make([]vision.Face, len(faces))
	for i, fc := range faces {
		out[i] = vision.Face{Region: vision.RegionFromRect(fc.Rectangle), Embedding: toEmbedding(fc.Descriptor)}
	}
	return out, nil
}

// Detect returns the face regions in f.
func (r *Recognizer) Detect(f vision.Frame) ([]vision.Region, error) {
	faces, err := r.recognize(f)
	if err != nil {
		return nil, err
	}
	regions := make([]vision.Region, len(faces))
	for i, fc := range faces {
		regions[i] = vision.RegionFromRect(fc.Rectangle)
	}
	return regions, nil
}

// Embed re-runs recognition on f and returns, for each region, the
// descriptor of the detected face overlapping it most.
func (r *Recognizer) Embed(f vision.Frame, regions []vision.Region) ([]vision.Embedding, error) {
	faces, err := r.recognize(f)
	if err != nil {
		return nil, err
	}
	out := make([]vision.Embedding, len(regions))
	for i, reg := range regions {
		best := bestOverlap(reg.Rect(), faces)
		if best < 0 {
			return nil, fmt.Errorf("%w at %v", ErrNoOverlap, reg.Rect())
		}
		out[i] = toEmbedding(faces[best].Descriptor)
	}
	return out, nil
}

// ErrNoOverlap is reported when a requested region matches no detection.
var ErrNoOverlap = errors.New("no overlapping face")

// bestOverlap returns the index of the face whose rectangle shares the most
// area with want, or -1.
func bestOverlap(want image.Rectangle, faces []face.Face) int {
	best, bestArea := -1, 0
	for i, fc := range faces {
		in := want.Intersect(fc.Rectangle)
		if a := in.Dx() * in.Dy(); a > bestArea {
			best, bestArea = i, a
		}
	}
	return best
}

func toEmbedding(d face.Descriptor) vision.Embedding {
	e := make(vision.Embedding, len(d))
	for i, v := range d {
		e[i] = float64(v)
	}
	return e
}
