package netcdf

import (
	"fmt"
	"os"

	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
)

// Open reads a NetCDF-4 (HDF5-classic) file from disk and returns its
// group/variable/attribute tree. Only the superblock v0/v1 + object header
// v1 + version-1 B-tree subset real netCDF-4 classic-model files use is
// supported (see the package doc comment and DESIGN.md).
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, badInput(path, err)
	}
	defer f.Close()

	sb, err := readSuperblock(f)
	if err != nil {
		return nil, badInput(path, err)
	}
	offSize := int(sb.sizeOfOffsets)

	rd := &diskReader{r: f, offSize: offSize, byAddr: map[uint64]string{}}

	root, err := rd.loadGroup(sb.rootHeaderAddr, sb.rootBTree, sb.rootHeap, "/", "")
	if err != nil {
		return nil, badInput(path, fmt.Errorf("load root group: %w", err))
	}

	ds := &Dataset{path: path, Root: root}

	// DIMENSION_LIST attributes were captured during the tree walk as raw
	// addresses; resolve them to dimension names now that every object's
	// path is known (rd.byAddr is complete once the whole tree has been
	// visited).
	ds.Walk(func(g *Group) {
		for _, v := range g.Variables {
			rd.resolveDimensionNames(v)
		}
	})

	return ds, nil
}

type diskReader struct {
	r       readerAt
	offSize int
	byAddr  map[uint64]string // object header address -> fully qualified path
	pending map[*Variable][][]uint64
}

type readerAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

func (rd *diskReader) loadGroup(headerAddr, btreeAddr, heapAddr uint64, path, name string) (*Group, error) {
	g := NewGroup(path, name)
	rd.byAddr[headerAddr] = path

	header, err := readObjectHeaderV1(rd.r, headerAddr)
	if err != nil {
		return nil, err
	}
	if err := rd.applyAttributes(header, g.Attributes, nil); err != nil {
		return nil, err
	}

	// A version-1 group carries its own symbol-table message pointing at
	// its B-tree/heap, except the root group, whose B-tree/heap come from
	// the superblock.
	effBTree, effHeap := btreeAddr, heapAddr
	if st, ok := header.find(msgSymbolTable); ok && len(st.data) >= 2*rd.offSize {
		effBTree = readOffset(st.data[0:rd.offSize], rd.offSize)
		effHeap = readOffset(st.data[rd.offSize:2*rd.offSize], rd.offSize)
	}
	if effBTree == 0 {
		return g, nil // leaf group with no children
	}

	heap, err := readLocalHeap(rd.r, effHeap, rd.offSize)
	if err != nil {
		return nil, err
	}
	entries, err := readGroupEntries(rd.r, effBTree, rd.offSize, heap)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		childHeader, err := readObjectHeaderV1(rd.r, e.addr)
		if err != nil {
			return nil, fmt.Errorf("load child %q: %w", e.name, err)
		}
		childPath := joinPath(path, e.name)
		if _, isDataset := childHeader.find(msgDataLayout); isDataset {
			v, err := rd.loadVariable(childHeader, e.addr, childPath, e.name)
			if err != nil {
				return nil, fmt.Errorf("load variable %q: %w", e.name, err)
			}
			g.Variables[e.name] = v
		} else {
			child, err := rd.loadGroup(e.addr, 0, 0, childPath, e.name)
			if err != nil {
				return nil, err
			}
			g.Groups[e.name] = child
		}
	}

	return g, nil
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func (rd *diskReader) loadVariable(header *objectHeader, addr uint64, path, name string) (*Variable, error) {
	rd.byAddr[addr] = path

	dsMsg, ok := header.find(msgDataspace)
	if !ok {
		return nil, fmt.Errorf("variable missing dataspace message")
	}
	dataspace, err := parseDataspaceMessage(dsMsg.data)
	if err != nil {
		return nil, err
	}

	dtMsg, ok := header.find(msgDatatype)
	if !ok {
		return nil, fmt.Errorf("variable missing datatype message")
	}
	datatype, err := parseDatatypeMessage(dtMsg.data)
	if err != nil {
		return nil, err
	}
	dtype, err := datatype.toDType()
	if err != nil {
		return nil, err
	}

	layoutMsg, ok := header.find(msgDataLayout)
	if !ok {
		return nil, fmt.Errorf("variable missing data layout message")
	}
	layout, err := parseDataLayoutMessage(layoutMsg.data, rd.offSize)
	if err != nil {
		return nil, err
	}

	shape := dataspace.shape()
	v := &Variable{
		Name:       name,
		Path:       path,
		DType:      dtype,
		Shape:      shape,
		Attributes: attrval.Map{},
	}

	switch layout.class {
	case layoutContiguous:
		if layout.dataAddress != 0 && layout.dataAddress != ^uint64(0) {
			data, err := readContiguous(rd.r, layout, shape, dtype.Size())
			if err != nil {
				return nil, err
			}
			v.Data = data
		} else {
			v.Data = make([]byte, elementCount(shape)*dtype.Size())
		}
	case layoutChunked:
		chunks := make([]int, len(layout.chunkDims)-1)
		for i := range chunks {
			chunks[i] = int(layout.chunkDims[i])
		}
		v.Chunks = chunks
		if layout.btreeAddr != 0 {
			data, err := readChunked(rd.r, layout, shape, dtype.Size(), rd.offSize)
			if err != nil {
				return nil, err
			}
			v.Data = data
		} else {
			v.Data = make([]byte, elementCount(shape)*dtype.Size())
		}
	default:
		return nil, fmt.Errorf("unsupported layout class %d", layout.class)
	}

	if err := rd.applyAttributes(header, v.Attributes, v); err != nil {
		return nil, err
	}

	return v, nil
}

// applyAttributes decodes every attribute message on an object header into
// attrs. When v is non-nil (the object is a variable) DIMENSION_LIST
// attributes are captured as raw address lists for later resolution, once
// the whole file has been walked and every object's path is known.
func (rd *diskReader) applyAttributes(header *objectHeader, attrs attrval.Map, v *Variable) error {
	for _, m := range header.findAll(msgAttribute) {
		pa, err := parseAttributeMessage(m.data, rd.offSize)
		if err != nil {
			return fmt.Errorf("parse attribute: %w", err)
		}
		if pa.isRef {
			if v != nil && pa.name == "DIMENSION_LIST" {
				if rd.pending == nil {
					rd.pending = map[*Variable][][]uint64{}
				}
				rd.pending[v] = pa.refsByAxis
			}
			continue
		}
		attrs[pa.name] = pa.value
	}
	return nil
}

// resolveDimensionNames turns the raw DIMENSION_LIST addresses captured
// during the walk into variable.Dimensions, by looking up each referenced
// object's path in rd.byAddr and taking its last path segment as the
// dimension name — the netCDF-4 convention of one dimension-scale variable
// per axis.
func (rd *diskReader) resolveDimensionNames(v *Variable) {
	refs, ok := rd.pending[v]
	if !ok {
		v.Dimensions = make([]string, len(v.Shape))
		return
	}
	names := make([]string, len(refs))
	for i, axisRefs := range refs {
		if len(axisRefs) == 0 {
			continue
		}
		if p, ok := rd.byAddr[axisRefs[0]]; ok {
			names[i] = lastSegment(p)
		}
	}
	v.Dimensions = names
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
