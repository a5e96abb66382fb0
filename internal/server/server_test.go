package server_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"facturas/internal/export"
	"facturas/internal/ingest"
	"facturas/internal/server"
	"facturas/internal/vault"
)

func newTestServer() *server.Server {
	config := &server.Config{
		Address:            ":8080",
		Debug:              true,
		AdvanceOnDuplicate: true,
	}
	return server.NewServer(config, vault.NewMemory())
}

func invoiceXML(uuid, number string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<Invoice>
	<ID>` + number + `</ID>
	<UUID>` + uuid + `</UUID>
	<IssueDate>2024-03-15</IssueDate>
	<AccountingSupplierParty><Party><PartyTaxScheme>
		<RegistrationName>Comercializadora Andina S.A.S.</RegistrationName>
		<CompanyID>900123456-7</CompanyID>
	</PartyTaxScheme></Party></AccountingSupplierParty>
	<LegalMonetaryTotal><PayableAmount>1190.00</PayableAmount></LegalMonetaryTotal>
	<InvoiceLine>
		<InvoicedQuantity>1</InvoicedQuantity>
		<Item><Description>Cemento gris</Description></Item>
	</InvoiceLine>
</Invoice>`
}

// multipartBody builds a multipart form with the named files under field.
func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func uploadFiles(t *testing.T, srv *server.Server, field string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, files)
	req := httptest.NewRequest(http.MethodPost, "/api/xml/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.Equal(t, "ok", response["status"])
	assert.NotEmpty(t, response["time"])
}

func TestUploadEndpoint(t *testing.T) {
	srv := newTestServer()

	w := uploadFiles(t, srv, "files", map[string]string{
		"a.xml":   invoiceXML("cufe-a", "FE-1"),
		"b.xml":   invoiceXML("cufe-b", "FE-2"),
		"bad.xml": "not an invoice <",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var summary ingest.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

	assert.Equal(t, 2, summary.Uploaded)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, summary.Errors)
	assert.Len(t, summary.Details, 3)
}

func TestUploadEndpoint_DuplicatesSkipped(t *testing.T) {
	srv := newTestServer()

	w := uploadFiles(t, srv, "files", map[string]string{
		"a.xml": invoiceXML("cufe-a", "FE-1"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = uploadFiles(t, srv, "files", map[string]string{
		"again.xml": invoiceXML("cufe-a", "FE-1"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var summary ingest.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 0, summary.Uploaded)
	assert.Equal(t, 1, summary.Skipped)
}

func TestUploadEndpoint_BracketFieldName(t *testing.T) {
	srv := newTestServer()

	// PHP-style clients send files[]
	w := uploadFiles(t, srv, "files[]", map[string]string{
		"a.xml": invoiceXML("cufe-a", "FE-1"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var summary ingest.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Uploaded)
}

func TestUploadEndpoint_NoFiles(t *testing.T) {
	srv := newTestServer()

	w := uploadFiles(t, srv, "other_field", map[string]string{
		"a.xml": invoiceXML("cufe-a", "FE-1"),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadEndpoint_NotMultipart(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/xml/upload", bytes.NewReader([]byte("plain body")))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEndpoint(t *testing.T) {
	srv := newTestServer()

	files := make(map[string]string)
	for i := 0; i < 25; i++ {
		files["f"+strconv.Itoa(i)+".xml"] = invoiceXML("cufe-"+strconv.Itoa(i), "FE-"+strconv.Itoa(i))
	}
	require.Equal(t, http.StatusOK, uploadFiles(t, srv, "files", files).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/xml/list?page=1&per_page=10", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response server.ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 25, response.Total)
	assert.Equal(t, 3, response.Pages)
	assert.Equal(t, 1, response.CurrentPage)
	assert.Len(t, response.Items, 10)
}

func TestListEndpoint_PastEnd(t *testing.T) {
	srv := newTestServer()

	require.Equal(t, http.StatusOK, uploadFiles(t, srv, "files", map[string]string{
		"a.xml": invoiceXML("cufe-a", "FE-1"),
	}).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/xml/list?page=9&per_page=10", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response server.ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Empty(t, response.Items)
	assert.Equal(t, 1, response.Total)
}

func TestDeleteEndpoint(t *testing.T) {
	srv := newTestServer()

	require.Equal(t, http.StatusOK, uploadFiles(t, srv, "files", map[string]string{
		"a.xml": invoiceXML("cufe-a", "FE-1"),
	}).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/xml/list", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var listed server.ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Items, 1)

	req = httptest.NewRequest(http.MethodDelete, "/api/xml/"+strconv.FormatInt(listed.Items[0].ID, 10), nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Second delete: the record is gone
	req = httptest.NewRequest(http.MethodDelete, "/api/xml/"+strconv.FormatInt(listed.Items[0].ID, 10), nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var errResp server.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "invoice not found", errResp.Error)
}

func TestDeleteEndpoint_InvalidID(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodDelete, "/api/xml/abc", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportEndpoint(t *testing.T) {
	srv := newTestServer()

	require.Equal(t, http.StatusOK, uploadFiles(t, srv, "files", map[string]string{
		"a.xml": invoiceXML("cufe-a", "FE-1"),
	}).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/xml/export", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "invoices_export.xlsx")

	// The body is a readable workbook
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Detalle Facturas")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "FE-1", rows[1][0])
}

func TestProcessExcelEndpoint(t *testing.T) {
	srv := newTestServer()

	workbook := buildLedgerWorkbook(t, [][]interface{}{
		{"Fecha", "Folio", "Tipo", "Total", "Impuesto"},
		{"2024-03-01", "100", "Factura", 1190, 190},
		{"2024-03-02", "101", "Factura", 1190, 190},
		{"2024-03-03", "105", "Factura", 700, 123},
	})

	body, contentType := multipartBody(t, "file", map[string]string{
		"libro.xlsx": string(workbook),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/excel/process", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response server.ProcessExcelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.Equal(t, 3, response.Summary.ProcessedRows)
	require.Len(t, response.Data, 3)
	assert.Equal(t, "START", string(response.Data[0].COMCON))
	assert.Equal(t, "OK", string(response.Data[1].COMCON))
	assert.Equal(t, "JUMP DETECTED", string(response.Data[2].COMCON))
	assert.Equal(t, "OK", string(response.Data[0].Verif))
	assert.Equal(t, "CHECK", string(response.Data[2].Verif))
}

func TestProcessExcelEndpoint_Malformed(t *testing.T) {
	srv := newTestServer()

	body, contentType := multipartBody(t, "file", map[string]string{
		"libro.xlsx": "definitely not a workbook",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/excel/process", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessExcelEndpoint_NoFile(t *testing.T) {
	srv := newTestServer()

	body, contentType := multipartBody(t, "wrong_field", map[string]string{
		"libro.xlsx": "irrelevant",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/excel/process", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func buildLedgerWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, value))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

// Benchmark tests

func BenchmarkUpload(b *testing.B) {
	srv := newTestServer()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, _ := w.CreateFormFile("files", "bench.xml")
		_, _ = part.Write([]byte(invoiceXML("cufe-"+strconv.Itoa(i), "FE-1")))
		_ = w.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/xml/upload", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
	}
}

func BenchmarkHealth(b *testing.B) {
	srv := newTestServer()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
	}
}
