// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package fits

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
)

// WriteFile writes an in-memory image to a file with given filename,
// creating or overwriting it as necessary.
func (f *Image) WriteFile(fileName string) error {
	file, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()
	return f.Write(file)
}

// Write serializes the image to w as a FITS-like file: a textual header
// block followed by the pixel data as 32-bit floats in network byte order.
// After the structural keys, the entries of f.Header are written grouped by
// value type (bools, ints, floats, strings, dates), sorted by key within
// each group, then its COMMENT and HISTORY lines. The original card order
// and per-card comments are not kept.
func (f *Image) Write(w io.Writer) error {
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt32(&sb, "BITPIX", -32, "32-bit floating point")
	writeInt32(&sb, "NAXIS", int32(len(f.Naxisn)), "Number of axes")
	for i, naxis := range f.Naxisn {
		writeInt32(&sb, fmt.Sprintf("NAXIS%d", i+1), naxis, "Axis size")
	}
	writeFloat32(&sb, "BZERO", f.Bzero, "Zero offset")
	writeFloat32(&sb, "BSCALE", f.Bscale, "Value scaler")
	if f.Exposure != 0 {
		writeFloat32(&sb, "EXPOSURE", f.Exposure, "Exposure in seconds")
	}

	for _, k := range sortedKeys(f.Header.Bools) {
		writeBool(&sb, k, f.Header.Bools[k], "")
	}
	for _, k := range sortedKeys(f.Header.Ints) {
		writeInt32(&sb, k, f.Header.Ints[k], "")
	}
	for _, k := range sortedKeys(f.Header.Floats) {
		writeFloat32(&sb, k, f.Header.Floats[k], "")
	}
	for _, k := range sortedKeys(f.Header.Strings) {
		writeString(&sb, k, f.Header.Strings[k], "")
	}
	for _, k := range sortedKeys(f.Header.Dates) {
		writeString(&sb, k, f.Header.Dates[k], "")
	}
	for _, c := range f.Header.Comments {
		fmt.Fprintf(&sb, "COMMENT %-72s", c)
	}
	for _, h := range f.Header.History {
		fmt.Fprintf(&sb, "HISTORY %-72s", h)
	}
	writeEnd(&sb)

	if rem := sb.Len() % fitsBlockSize; rem > 0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-rem))
	}

	if _, err := w.Write([]byte(sb.String())); err != nil {
		return err
	}
	return writeFloat32Array(w, f.Data, true)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeBool(w io.Writer, key string, value bool, comment string) {
	key, comment = clampHeaderField(key, comment)
	v := "F"
	if value {
		v = "T"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
}

func writeInt32(w io.Writer, key string, value int32, comment string) {
	key, comment = clampHeaderField(key, comment)
	fmt.Fprintf(w, "%-8s= %20d / %-47s", key, value, comment)
}

func writeFloat32(w io.Writer, key string, value float32, comment string) {
	key, comment = clampHeaderField(key, comment)
	fmt.Fprintf(w, "%-8s= %20g / %-47s", key, value, comment)
}

func writeString(w io.Writer, key, value, comment string) {
	key, comment = clampHeaderField(key, comment)
	value = strings.ReplaceAll(value, "'", "''")
	if len(value) > 18 {
		value = value[:18]
	}
	fmt.Fprintf(w, "%-8s= '%s'%s / %-47s", key, value, strings.Repeat(" ", 18-len(value)), comment)
}

func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", 80-3))
}

func clampHeaderField(key, comment string) (string, string) {
	if len(key) > 8 {
		key = key[:8]
	}
	if len(comment) > 47 {
		comment = comment[:47]
	}
	return key, comment
}

// writeFloat32Array writes FITS binary body data in network byte order,
// optionally replacing NaNs with zeros for compatibility with downstream
// tooling that cannot represent them.
func writeFloat32Array(w io.Writer, data []float32, replaceNaNs bool) error {
	buf := make([]byte, bufLen)
	stride := bufLen >> 2

	for block := 0; block < len(data); block += stride {
		size := len(data) - block
		if size > stride {
			size = stride
		}
		for offset := 0; offset < size; offset++ {
			d := data[block+offset]
			if replaceNaNs && math.IsNaN(float64(d)) {
				d = 0
			}
			val := math.Float32bits(d)
			buf[(offset<<2)+0] = byte(val >> 24)
			buf[(offset<<2)+1] = byte(val >> 16)
			buf[(offset<<2)+2] = byte(val >> 8)
			buf[(offset<<2)+3] = byte(val)
		}
		if _, err := w.Write(buf[:size<<2]); err != nil {
			return err
		}
	}
	return nil
}
