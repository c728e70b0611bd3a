// Package checkpoint saves and restores network parameters.
// A checkpoint is a zip archive containing:
//   model.json          Metadata (including the network's ModelConfig)
//   params/<name>.bin   One gonum binary matrix per parameter
package checkpoint

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cyclopcam/bfvos/pkg/network"
	"github.com/cyclopcam/bfvos/pkg/storage"
	"github.com/cyclopcam/logs"
	"gonum.org/v1/gonum/mat"
)

const metadataName = "model.json"

// Metadata is stored as model.json inside every checkpoint
type Metadata struct {
	Model     network.ModelConfig `json:"model"`
	Epoch     int                 `json:"epoch"`
	Batch     int                 `json:"batch"` // Zero for the final model
	Final     bool                `json:"final"`
	CreatedAt time.Time           `json:"createdAt"`
	Params    []string            `json:"params"`
}

// CheckpointName is the name of a periodic checkpoint
func CheckpointName(epoch, batch int) string {
	return fmt.Sprintf("ckpt_epoch_%v_batch_id_%v.pth", epoch, batch)
}

// FinalName is the name of the model saved at the end of training.
// The timestamp is unix seconds with microseconds, and contains no spaces.
func FinalName(numEpochs int, t time.Time) string {
	return fmt.Sprintf("epoch_%v_%d.%06d.model", numEpochs, t.Unix(), t.Nanosecond()/1000)
}

func paramFilename(name string) string {
	return "params/" + name + ".bin"
}

// Save writes the parameters of net to 'name' inside store
func Save(store storage.Storage, name string, net network.Network, meta Metadata) error {
	meta.Model = *net.Config()
	meta.Params = nil
	for _, p := range net.Params() {
		meta.Params = append(meta.Params, p.Name)
	}

	f, err := store.WriteFile(name)
	if err != nil {
		return err
	}
	zipWriter := zip.NewWriter(f)
	err = writeArchive(zipWriter, net, &meta)
	if errZip := zipWriter.Close(); err == nil {
		err = errZip
	}
	if errClose := f.Close(); err == nil {
		err = errClose
	}
	if err != nil {
		return fmt.Errorf("Failed to write checkpoint %v: %w", name, err)
	}
	return nil
}

func writeArchive(zipWriter *zip.Writer, net network.Network, meta *Metadata) error {
	metaZ, err := zipWriter.Create(metadataName)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(metaZ)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(meta); err != nil {
		return err
	}
	for _, p := range net.Params() {
		paramZ, err := zipWriter.Create(paramFilename(p.Name))
		if err != nil {
			return err
		}
		if _, err := p.Value.MarshalBinaryTo(paramZ); err != nil {
			return fmt.Errorf("Parameter %v: %w", p.Name, err)
		}
	}
	return nil
}

// Load restores the parameters of net from the checkpoint 'name'.
// The checkpoint must have been written by a network with the same ModelConfig.
func Load(store storage.Storage, name string, net network.Network) (*Metadata, error) {
	raw, err := storage.ReadFile(store, name)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("Checkpoint %v is not a valid archive: %w", name, err)
	}
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}

	meta := &Metadata{}
	if err := readJSON(files[metadataName], meta); err != nil {
		return nil, fmt.Errorf("Checkpoint %v: %w", name, err)
	}
	if meta.Model != *net.Config() {
		return nil, fmt.Errorf("Checkpoint %v was saved from model %+v, but network is %+v", name, meta.Model, *net.Config())
	}

	for _, p := range net.Params() {
		f := files[paramFilename(p.Name)]
		if f == nil {
			return nil, fmt.Errorf("Checkpoint %v has no parameter %v", name, p.Name)
		}
		r, err := f.Open()
		if err != nil {
			return nil, err
		}
		var m mat.Dense
		_, err = m.UnmarshalBinaryFrom(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("Checkpoint %v parameter %v: %w", name, p.Name, err)
		}
		wr, wc := p.Value.Dims()
		mr, mc := m.Dims()
		if wr != mr || wc != mc {
			return nil, fmt.Errorf("Checkpoint %v parameter %v is %vx%v, expected %vx%v", name, p.Name, mr, mc, wr, wc)
		}
		p.Value.Copy(&m)
	}
	return meta, nil
}

func readJSON(f *zip.File, dst any) error {
	if f == nil {
		return fmt.Errorf("missing %v", metadataName)
	}
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// Writer saves periodic checkpoints and the final model into a blob store
type Writer struct {
	Store storage.Storage
	log   logs.Log
}

func NewWriter(log logs.Log, store storage.Storage) *Writer {
	return &Writer{
		Store: store,
		log:   log,
	}
}

// SaveCheckpoint writes a periodic checkpoint, and returns its name
func (w *Writer) SaveCheckpoint(net network.Network, epoch, batch int) (string, error) {
	name := CheckpointName(epoch, batch)
	meta := Metadata{
		Epoch:     epoch,
		Batch:     batch,
		CreatedAt: time.Now().UTC(),
	}
	if err := Save(w.Store, name, net, meta); err != nil {
		return "", err
	}
	w.log.Infof("Checkpoint saved at %v", name)
	return name, nil
}

// SaveFinal writes the model at the end of training, and returns its name
func (w *Writer) SaveFinal(net network.Network, numEpochs int, now time.Time) (string, error) {
	name := FinalName(numEpochs, now)
	meta := Metadata{
		Epoch:     numEpochs,
		Final:     true,
		CreatedAt: now.UTC(),
	}
	if err := Save(w.Store, name, net, meta); err != nil {
		return "", err
	}
	w.log.Infof("Model saved to %v", name)
	return name, nil
}
