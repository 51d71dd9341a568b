package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowsKnownShapes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		shape Shape
		rows  int
	}{
		{"top-level array", `[{"v":1},{"v":2}]`, ShapeArray, 2},
		{"result array", `{"result":[{"v":1}]}`, ShapeResult, 1},
		{"result.data", `{"result":{"data":[{"v":1},{"v":2},{"v":3}]}}`, ShapeResultData, 3},
		{"results", `{"success":true,"results":[{"v":1}]}`, ShapeResults, 1},
		{"data", `{"meta":[{"name":"v"}],"data":[{"v":1}],"rows":1}`, ShapeData, 1},
		{"rows", `{"rows":[{"v":1},{"v":2}]}`, ShapeRows, 2},
		{"result wins over results", `{"result":[{"v":1}],"results":[{"v":1},{"v":2}]}`, ShapeResult, 1},
		{"empty array", `{"data":[]}`, ShapeData, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, _ := DetectShape([]byte(tt.body))
			assert.Equal(t, tt.shape, shape)
			assert.Len(t, Rows([]byte(tt.body)), tt.rows)
		})
	}
}

func TestRowsUnknownShapesAreEmpty(t *testing.T) {
	for _, body := range []string{
		``,
		`not json`,
		`{"result":{"count":3}}`,
		`{"rows":3}`,
		`42`,
		`null`,
		`{"data":"[1,2]"}`,
	} {
		rows := Rows([]byte(body))
		assert.NotNil(t, rows, "body %q", body)
		assert.Empty(t, rows, "body %q", body)
	}
}

func TestFirstNumber(t *testing.T) {
	rows := Rows([]byte(`{"data":[{"views":"12","visitors":3.6,"name":"x","empty":null},{"views":99}]}`))
	require.Len(t, rows, 2)

	assert.Equal(t, 12.0, FirstNumber(rows, "views"), "numeric strings are accepted")
	assert.Equal(t, int64(4), FirstInt(rows, "visitors"))
	assert.Equal(t, 0.0, FirstNumber(rows, "name"))
	assert.Equal(t, 0.0, FirstNumber(rows, "empty"))
	assert.Equal(t, 0.0, FirstNumber(rows, "missing"))
	assert.Equal(t, 0.0, FirstNumber(nil, "views"))
}

func TestFirstNumberFieldWithDots(t *testing.T) {
	rows := Rows([]byte(`[{"page.views":5,"page":{"views":9}}]`))
	assert.Equal(t, int64(5), FirstInt(rows, "page.views"))
}

func TestEnvelopeFailure(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		failed  bool
		message string
	}{
		{"success", `{"success":true,"result":[]}`, false, ""},
		{"plain array", `[{"v":1}]`, false, ""},
		{"success false with errors", `{"success":false,"errors":[{"code":7000,"message":"no such table"}]}`, true, "no such table"},
		{"errors without success flag", `{"errors":["bad query"]}`, true, "bad query"},
		{"empty errors list", `{"errors":[],"data":[]}`, false, ""},
		{"success false with error field", `{"success":false,"error":"quota"}`, true, "quota"},
		{"success false without message", `{"success":false}`, true, "analytics engine reported failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, failed := envelopeFailure([]byte(tt.body))
			assert.Equal(t, tt.failed, failed)
			assert.Equal(t, tt.message, msg)
		})
	}
}
