package kt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTSVBodyEncodeOrderAndEncoding(t *testing.T) {
	// spec §8 item 3: set("key","val") under DB=0 emits the DB control
	// line first, then the key/value line, both base64-encoded.
	body := &tsvBody{}
	body.add("DB", "0")
	body.add("key", "val")

	got := body.encode()
	lines := splitLines(got)
	require.Len(t, lines, 2)
	require.Equal(t, "DB", mustDecodeB64Col(t, lines[0][0]))
	require.Equal(t, "0", mustDecodeB64Col(t, lines[0][1]))
	require.Equal(t, "key", mustDecodeB64Col(t, lines[1][0]))
	require.Equal(t, "val", mustDecodeB64Col(t, lines[1][1]))
}

func TestTSVBodyRoundTripThroughAllColEncs(t *testing.T) {
	body := &tsvBody{}
	body.add("_somekey", "somevalue")
	body.add("num", "42")

	encoded := body.encode()
	decoded, err := decodeTSVBody(encoded, colEncB)
	require.NoError(t, err)
	v, ok := decoded.get("_somekey")
	require.True(t, ok)
	require.Equal(t, "somevalue", v)
	v, ok = decoded.get("num")
	require.True(t, ok)
	require.Equal(t, "42", v)
}

func TestTSVBodyDecodeNoEncoding(t *testing.T) {
	raw := []byte("key\tval\n")
	decoded, err := decodeTSVBody(raw, colEncNone)
	require.NoError(t, err)
	v, ok := decoded.get("key")
	require.True(t, ok)
	require.Equal(t, "val", v)
}

func TestTSVBodyAllPrefix(t *testing.T) {
	body := &tsvBody{}
	body.add("_a", "1")
	body.add("_b", "2")
	body.add("DB", "0")

	got := body.all("_")
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}

func TestColEncFromContentType(t *testing.T) {
	require.Equal(t, colEncB, colEncFromContentType("text/tab-separated-values; colenc=B"))
	require.Equal(t, colEncU, colEncFromContentType("text/tab-separated-values; colenc=U"))
	require.Equal(t, colEncNone, colEncFromContentType("text/tab-separated-values"))
}

// --- test helpers --------------------------------------------------------

func splitLines(b []byte) [][2]string {
	var out [][2]string
	start := 0
	for i := 0; i <= len(b); i++ {
		if i == len(b) || b[i] == '\n' {
			line := string(b[start:i])
			start = i + 1
			if line == "" {
				continue
			}
			tab := -1
			for j := 0; j < len(line); j++ {
				if line[j] == '\t' {
					tab = j
					break
				}
			}
			out = append(out, [2]string{line[:tab], line[tab+1:]})
		}
	}
	return out
}

func mustDecodeB64Col(t *testing.T, col string) string {
	t.Helper()
	b, err := decodeTSVColumn([]byte(col), colEncB)
	require.NoError(t, err)
	return string(b)
}
