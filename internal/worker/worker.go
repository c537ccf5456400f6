package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/facegate/internal/utils" // Using the SafeCommand wrapper
	"github.com/andresmejia3/facegate/internal/vision"
)

// EmbeddingDim is the length of the face_recognition (dlib ResNet) encoding.
const EmbeddingDim = 128

// Request modes understood by python/worker.py.
const (
	ModeDetect    byte = 'D'
	ModeEmbed     byte = 'E'
	ModeRecognize byte = 'R'
)

const (
	statusOK    byte = 0
	statusError byte = 1
)

// PythonWorker drives a face_recognition worker process. It implements
// vision.FaceEmbedder and vision.FaceRecognizer. Not safe for concurrent use.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

// Config selects the interpreter and script to run.
type Config struct {
	Python string // defaults to python3
	Script string // defaults to python/worker.py
}

func NewPythonWorker(id int, cfg Config) (*PythonWorker, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Script == "" {
		cfg.Script = "python/worker.py"
	}

	// 1. Initialize the SafeCommand
	py := utils.NewSafeCommand(cfg.Python, "-u", cfg.Script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	// Read Result from the side channel
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends one encoded image and returns the faces the worker found.
// Regions are only sent with ModeEmbed.
func (w *PythonWorker) ProcessFrame(mode byte, img []byte, regions []vision.Region) ([]vision.Face, error) {
	resp, err := w.Communicate(encodeRequest(mode, img, regions))
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

// Detect returns the face locations the worker finds in f.
func (w *PythonWorker) Detect(f vision.Frame) ([]vision.Region, error) {
	img, err := f.Encode(".jpg")
	if err != nil {
		return nil, err
	}
	faces, err := w.ProcessFrame(ModeDetect, img, nil)
	if err != nil {
		return nil, err
	}
	regions := make([]vision.Region, len(faces))
	for i, face := range faces {
		regions[i] = face.Region
	}
	return regions, nil
}

// Embed returns one encoding per region, in region order.
func (w *PythonWorker) Embed(f vision.Frame, regions []vision.Region) ([]vision.Embedding, error) {
	img, err := f.Encode(".jpg")
	if err != nil {
		return nil, err
	}
	faces, err := w.ProcessFrame(ModeEmbed, img, regions)
	if err != nil {
		return nil, err
	}
	if len(faces) != len(regions) {
		return nil, fmt.Errorf("worker returned %d encodings for %d regions", len(faces), len(regions))
	}
	embs := make([]vision.Embedding, len(faces))
	for i, face := range faces {
		embs[i] = face.Embedding
	}
	return embs, nil
}

// Recognize detects and encodes every face in f in a single round trip.
func (w *PythonWorker) Recognize(f vision.Frame) ([]vision.Face, error) {
	img, err := f.Encode(".jpg")
	if err != nil {
		return nil, err
	}
	return w.ProcessFrame(ModeRecognize, img, nil)
}

// Close shuts the pipes and waits for the interpreter to exit.
func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}

// encodeRequest builds [Mode][NumRegions][Regions...][Image].
func encodeRequest(mode byte, img []byte, regions []vision.Region) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(mode)
	binary.Write(buf, binary.BigEndian, uint32(len(regions)))
	for _, r := range regions {
		binary.Write(buf, binary.BigEndian, [4]int32{int32(r.Top), int32(r.Right), int32(r.Bottom), int32(r.Left)})
	}
	buf.Write(img)
	return buf.Bytes()
}

// decodeResponse parses [Status:0][NumFaces][HasVec] then per face [Box][Vec?],
// or [Status:1][MsgLen][Msg].
func decodeResponse(resp []byte) ([]vision.Face, error) {
	r := bytes.NewReader(resp)
	status, err := r.ReadByte()
	if err != nil {
		return nil, errors.New("empty response from python worker")
	}

	if status == statusError {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var numFaces uint32
	if err := binary.Read(r, binary.BigEndian, &numFaces); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	hasVec, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	// Each face is 4 int32s, plus the vector when one is attached.
	per := uint64(16)
	if hasVec != 0 {
		per += 4 * EmbeddingDim
	}
	if uint64(numFaces)*per > uint64(r.Len()) {
		return nil, fmt.Errorf("malformed response: %d faces do not fit in %d bytes", numFaces, r.Len())
	}

	faces := make([]vision.Face, 0, numFaces)
	for i := uint32(0); i < numFaces; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("malformed face %d: %w", i, err)
		}
		face := vision.Face{Region: vision.Region{Top: int(box[0]), Right: int(box[1]), Bottom: int(box[2]), Left: int(box[3])}}
		if hasVec != 0 {
			var vec [EmbeddingDim]float32
			if err := binary.Read(r, binary.BigEndian, &vec); err != nil {
				return nil, fmt.Errorf("malformed face %d: %w", i, err)
			}
			face.Embedding = make(vision.Embedding, EmbeddingDim)
			for j, v := range vec {
				face.Embedding[j] = float64(v)
			}
		}
		faces = append(faces, face)
	}
	return faces, nil
}
