package anvil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/stonehall/stonehall/pkg/world"
)

const (
	sectorSize  = 4096
	headerSize  = 2 * sectorSize
	compGzip    = 1
	compZlib    = 2
	regionChunk = 32 // chunks per region side
)

// Provider reads and writes anvil world directories.
type Provider struct {
	path string
}

func init() {
	world.RegisterProvider("anvil",
		func() world.Provider { return &Provider{} },
		func(path string) bool {
			_, err := os.Stat(filepath.Join(path, "level.dat"))
			return err == nil
		})
}

// Name implements world.Provider.
func (p *Provider) Name() string { return "anvil" }

// Create implements world.Provider.
func (p *Provider) Create(path string, data world.Data) error {
	if err := os.MkdirAll(filepath.Join(path, "region"), 0755); err != nil {
		return fmt.Errorf("anvil: %w", err)
	}
	p.path = path
	return p.SaveData(data)
}

// Open implements world.Provider.
func (p *Provider) Open(path string) error {
	if _, err := os.Stat(filepath.Join(path, "level.dat")); err != nil {
		return fmt.Errorf("anvil: %w", err)
	}
	p.path = path
	return nil
}

// Close implements world.Provider.
func (p *Provider) Close() error { return nil }

// LoadData implements world.Provider.
func (p *Provider) LoadData() (world.Data, error) {
	f, err := os.Open(filepath.Join(p.path, "level.dat"))
	if err != nil {
		return world.Data{}, fmt.Errorf("anvil: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return world.Data{}, fmt.Errorf("anvil: level.dat: %w", err)
	}
	defer gz.Close()

	var root levelRoot
	if _, err := nbt.NewDecoder(gz).Decode(&root); err != nil {
		return world.Data{}, fmt.Errorf("anvil: level.dat: %w", err)
	}

	d := world.Data{
		Name:             root.Data.LevelName,
		GeneratorName:    root.Data.GeneratorName,
		GeneratorVersion: root.Data.GeneratorVersion,
		Seed:             root.Data.RandomSeed,
		SpawnX:           float64(root.Data.SpawnX),
		SpawnY:           float64(root.Data.SpawnY),
		SpawnZ:           float64(root.Data.SpawnZ),
		Width:            -1,
		Depth:            -1,
	}
	if e := root.Data.Stonehall; e != nil {
		d.Width = e.Width
		d.Depth = e.Depth
	}
	return d, nil
}

// SaveData implements world.Provider.
func (p *Provider) SaveData(d world.Data) error {
	root := levelRoot{Data: levelData{
		LevelName:        d.Name,
		GeneratorName:    d.GeneratorName,
		GeneratorVersion: d.GeneratorVersion,
		RandomSeed:       d.Seed,
		SpawnX:           int32(d.SpawnX),
		SpawnY:           int32(d.SpawnY),
		SpawnZ:           int32(d.SpawnZ),
	}}
	if d.Width >= 0 || d.Depth >= 0 {
		root.Data.Stonehall = &engineData{Width: d.Width, Depth: d.Depth}
	}

	f, err := os.Create(filepath.Join(p.path, "level.dat"))
	if err != nil {
		return fmt.Errorf("anvil: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := nbt.NewEncoder(gz).Encode(root, ""); err != nil {
		gz.Close()
		return fmt.Errorf("anvil: level.dat: %w", err)
	}
	return gz.Close()
}

func (p *Provider) regionPath(cx, cz int32) string {
	rx := cx >> 5
	rz := cz >> 5
	return filepath.Join(p.path, "region", fmt.Sprintf("r.%d.%d.mca", rx, rz))
}

// headerIndex returns the byte offset of a chunk's location record.
func headerIndex(cx, cz int32) int64 {
	return int64((cx&(regionChunk-1) + (cz&(regionChunk-1))*regionChunk) * 4)
}

// LoadChunk implements world.Provider.
func (p *Provider) LoadChunk(cx, cz int32) (*world.Chunk, error) {
	f, err := os.Open(p.regionPath(cx, cz))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("anvil: %w", err)
	}
	defer f.Close()

	var loc [4]byte
	if _, err := f.ReadAt(loc[:], headerIndex(cx, cz)); err != nil {
		return nil, fmt.Errorf("anvil: region header: %w", err)
	}
	sector := int64(loc[0])<<16 | int64(loc[1])<<8 | int64(loc[2])
	if sector == 0 {
		return nil, nil
	}

	var head [5]byte
	if _, err := f.ReadAt(head[:], sector*sectorSize); err != nil {
		return nil, fmt.Errorf("anvil: chunk header: %w", err)
	}
	length := binary.BigEndian.Uint32(head[:4])
	if length < 1 || length > 1<<24 {
		return nil, fmt.Errorf("anvil: corrupt chunk length %d", length)
	}
	compType := head[4]

	raw := make([]byte, length-1)
	if _, err := f.ReadAt(raw, sector*sectorSize+5); err != nil {
		return nil, fmt.Errorf("anvil: chunk data: %w", err)
	}

	var zr io.ReadCloser
	switch compType {
	case compGzip:
		zr, err = gzip.NewReader(bytes.NewReader(raw))
	case compZlib:
		zr, err = zlib.NewReader(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("anvil: unknown compression type %d", compType)
	}
	if err != nil {
		return nil, fmt.Errorf("anvil: chunk stream: %w", err)
	}
	defer zr.Close()

	var root chunkRoot
	if _, err := nbt.NewDecoder(zr).Decode(&root); err != nil {
		return nil, fmt.Errorf("anvil: chunk nbt: %w", err)
	}
	return decodeChunk(root), nil
}

// SaveChunk implements world.Provider. The chunk is appended in fresh
// sectors at the end of the region file and the header repointed.
func (p *Provider) SaveChunk(ch *world.Chunk) error {
	var body bytes.Buffer
	zw := zlib.NewWriter(&body)
	if err := nbt.NewEncoder(zw).Encode(encodeChunk(ch), ""); err != nil {
		zw.Close()
		return fmt.Errorf("anvil: chunk nbt: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("anvil: chunk stream: %w", err)
	}

	f, err := os.OpenFile(p.regionPath(ch.X, ch.Z), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("anvil: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("anvil: %w", err)
	}
	size := info.Size()
	if size < headerSize {
		if err := f.Truncate(headerSize); err != nil {
			return fmt.Errorf("anvil: %w", err)
		}
		size = headerSize
	}

	sector := (size + sectorSize - 1) / sectorSize
	payload := make([]byte, 5+body.Len())
	binary.BigEndian.PutUint32(payload[:4], uint32(body.Len()+1))
	payload[4] = compZlib
	copy(payload[5:], body.Bytes())

	padded := (len(payload) + sectorSize - 1) / sectorSize * sectorSize
	payload = append(payload, make([]byte, padded-len(payload))...)
	if _, err := f.WriteAt(payload, sector*sectorSize); err != nil {
		return fmt.Errorf("anvil: %w", err)
	}

	var loc [4]byte
	loc[0] = byte(sector >> 16)
	loc[1] = byte(sector >> 8)
	loc[2] = byte(sector)
	loc[3] = byte(padded / sectorSize)
	if _, err := f.WriteAt(loc[:], headerIndex(ch.X, ch.Z)); err != nil {
		return fmt.Errorf("anvil: %w", err)
	}

	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], uint32(time.Now().Unix()))
	if _, err := f.WriteAt(ts[:], sectorSize+headerIndex(ch.X, ch.Z)); err != nil {
		return fmt.Errorf("anvil: %w", err)
	}
	return nil
}
