// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/janpfeifer/must"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florischabert/translate/pkg/ml/refmodel"
	"github.com/florischabert/translate/pkg/ml/translator"
	"github.com/florischabert/translate/pkg/ml/vocab"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	var sourceWords, targetWords []string
	for ii := range 8 {
		sourceWords = append(sourceWords, fmt.Sprintf("s%d", ii))
		targetWords = append(targetWords, fmt.Sprintf("t%d", ii))
	}
	source, target := vocab.New(sourceWords...), vocab.New(targetWords...)
	model := must.M1(refmodel.New(refmodel.Config{
		SourceVocabSize: source.Len(),
		TargetVocabSize: target.Len(),
		HiddenSize:      4,
		NumStates:       1,
	}, 5))
	tr := translator.New(source, target, model.Encoder(), model.Step()).
		WithBeamSize(3).
		WithStopAtEOS(false)
	e := echo.New()
	New(tr).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTranslate(t *testing.T) {
	e := newTestEcho(t)

	t.Run("OK", func(t *testing.T) {
		rec := doJSON(t, e, http.MethodPost, "/v1/translate", `{"text": "s1 s2 s3"}`)
		require.Equal(t, http.StatusOK, rec.Code, "body=%s", rec.Body.String())
		var resp TranslateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, strings.HasPrefix(resp.ID, "tr_"))
		assert.Equal(t, 8, resp.MaxTimestep)
		assert.NotNil(t, resp.Tokens)
		assert.Empty(t, resp.Hypotheses)
	})

	t.Run("NBest", func(t *testing.T) {
		rec := doJSON(t, e, http.MethodPost, "/v1/translate", `{"text": "s1 s2", "n_best": 2}`)
		require.Equal(t, http.StatusOK, rec.Code, "body=%s", rec.Body.String())
		var resp TranslateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Hypotheses, 2)
		assert.Equal(t, resp.Translation, resp.Hypotheses[0].Translation)
	})

	t.Run("BadRequests", func(t *testing.T) {
		for _, body := range []string{`{"text": ""}`, `not json`, `{"txt": "s1"}`, `{"text": "s1", "n_best": 10}`} {
			rec := doJSON(t, e, http.MethodPost, "/v1/translate", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		}
	})
}

func TestBatch(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/translate/batch", `{"texts": ["s1", "s2 s3", "s4 s5 s6"]}`)
	require.Equal(t, http.StatusOK, rec.Code, "body=%s", rec.Body.String())
	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Translations, 3)
	assert.NotEqual(t, resp.Translations[0].ID, resp.Translations[1].ID)

	rec = doJSON(t, e, http.MethodPost, "/v1/translate/batch", `{"texts": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newTestEcho(t)
	doJSON(t, e, http.MethodPost, "/v1/translate", `{"text": "s1"}`)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.Translations)
	assert.Equal(t, 3, resp.BeamSize)
}
