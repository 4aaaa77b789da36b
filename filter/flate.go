package filter

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// decodeFlate reverses FlateDecode, applying the PNG/TIFF predictor
// post-processing PDF layers on top of raw zlib/deflate data. Ported
// from flateDecoder/decodePostProcess/processRow/
// filterPaeth/applyHorDiff (reader/parser/filters/flateDecode.go),
// itself adapted by from pdfcpu's filter package.
func decodeFlate(data []byte, p Params) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("filter: FlateDecode: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("filter: FlateDecode: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("filter: FlateDecode: %w", err)
	}
	return applyPredictor(raw, p)
}

// encodeFlate deflates data. Predictors are a decode-side convenience
// for encoders upstream of this library (e.g. image writers); this
// library never emits predicted streams of its own: the scope here is
// reproducing and round-tripping content rather than optimizing
// image encoding.
func encodeFlate(data []byte, p Params) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("filter: FlateDecode encode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("filter: FlateDecode encode: %w", err)
	}
	return buf.Bytes(), nil
}

func applyPredictor(data []byte, p Params) ([]byte, error) {
	if p.Predictor == 0 || p.Predictor == 1 {
		return data, nil
	}
	bytesPerPixel := (p.BitsPerComponent*p.Colors + 7) / 8
	rowSize := p.BitsPerComponent * p.Colors * p.Columns / 8
	if p.Predictor != 2 {
		rowSize++ // PNG prediction prefixes each row with a filter-type byte
	}

	cr := make([]byte, rowSize)
	pr := make([]byte, rowSize)
	var out []byte

	r := bytes.NewReader(data)
	for {
		_, err := io.ReadFull(r, cr)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("filter: FlateDecode predictor: %w", err)
		}
		d, err := processRow(pr, cr, p.Predictor, p.Colors, bytesPerPixel)
		if err != nil {
			return nil, err
		}
		out = append(out, d...)
		pr, cr = cr, pr
	}

	want := p.BitsPerComponent * p.Colors * p.Columns / 8
	if want > 0 && len(out)%want != 0 {
		return nil, fmt.Errorf("filter: FlateDecode predictor: postprocessing produced %d bytes, not a multiple of row size %d", len(out), want)
	}
	return out, nil
}

func processRow(pr, cr []byte, predictor, colors, bytesPerPixel int) ([]byte, error) {
	if predictor == 2 { // TIFF
		return applyHorizontalDiff(cr, colors), nil
	}

	cdat := cr[1:]
	pdat := pr[1:]
	switch cr[0] {
	case 0: // None
	case 1: // Sub
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += cdat[i-bytesPerPixel]
		}
	case 2: // Up
		for i, v := range pdat {
			cdat[i] += v
		}
	case 3: // Average
		for i := 0; i < bytesPerPixel; i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += uint8((int(cdat[i-bytesPerPixel]) + int(pdat[i])) / 2)
		}
	case 4: // Paeth
		filterPaeth(cdat, pdat, bytesPerPixel)
	default:
		return nil, fmt.Errorf("filter: FlateDecode predictor: unknown PNG row filter %d", cr[0])
	}
	return cdat, nil
}

func applyHorizontalDiff(row []byte, colors int) []byte {
	for i := 1; i < len(row)/colors; i++ {
		for j := 0; j < colors; j++ {
			row[i*colors+j] += row[(i-1)*colors+j]
		}
	}
	return row
}

func filterPaeth(cdat, pdat []byte, bytesPerPixel int) {
	var a, b, c, pa, pb, pc int32
	for i := 0; i < bytesPerPixel; i++ {
		a, c = 0, 0
		for j := i; j < len(cdat); j += bytesPerPixel {
			b = int32(pdat[j])
			pa = b - c
			pb = a - c
			pc = absInt32(pa + pb)
			pa = absInt32(pa)
			pb = absInt32(pb)
			switch {
			case pa <= pb && pa <= pc:
				// predicted = a; a already holds it.
			case pb <= pc:
				a = b
			default:
				a = c
			}
			a += int32(cdat[j])
			a &= 0xff
			cdat[j] = uint8(a)
			c = b
		}
	}
}

func absInt32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
