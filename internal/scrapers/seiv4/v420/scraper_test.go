package v420

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

const listingHTML = `
<html><body>
<table id="tblDocumentos"><tbody>
<tr><th>Header</th></tr>
<tr>
  <td align="center"><a href="/controlador_externo.php?acao=procedimento_visualizar&amp;id_procedimento_externo=link_one">12345.678901/2024-01</a></td>
</tr>
<tr>
  <td align="center"><a href="/controlador_externo.php?acao=procedimento_visualizar&amp;id_procedimento_externo=link_two">12345.678901/2024-02</a></td>
</tr>
<tr>
  <td align="center"><a href="/controlador_externo.php?acao=procedimento_visualizar&amp;id_procedimento_externo=link_bad">not-a-process</a></td>
</tr>
<tr>
  <td align="center"><a href="/no-id-here">12345.678901/2024-03</a></td>
</tr>
</tbody></table>
</body></html>`

func TestParseListing(t *testing.T) {
	sc := New(common.GetLogger())

	listings, err := sc.parseListing(listingHTML)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "12345.678901/2024-01", listings[0].ProcessNumber)
	assert.Equal(t, "link_one", listings[0].LinkID)
	assert.Equal(t, "12345.678901/2024-02", listings[1].ProcessNumber)
	assert.Equal(t, "link_two", listings[1].LinkID)
}

const documentsHTML = `
<html><body>
<table id="tblDocumentos">
<tr class="infraTrClara">
  <td>1</td>
  <td><a href="?acao=procedimento_visualizar&amp;id=1">11111111</a></td>
  <td>Despacho</td>
  <td>05/03/2026</td>
  <td>UNIT</td>
  <td>Maria Souza</td>
</tr>
<tr class="infraTrClara">
  <td>2</td>
  <td><a href="?acao=procedimento_visualizar&amp;id=2" onclick="alert('restricted')">22222222</a></td>
  <td>Nota</td>
  <td>06/03/2026</td>
  <td>UNIT</td>
  <td></td>
</tr>
<tr class="infraTrClara">
  <td>3</td>
  <td><a href="?acao=procedimento_visualizar&amp;id=3">badnumber</a></td>
  <td>Nota</td>
  <td>06/03/2026</td>
  <td>UNIT</td>
  <td></td>
</tr>
<tr class="infraTrClara">
  <td>4</td>
  <td><a href="?acao=procedimento_visualizar&amp;id=4">33333333</a></td>
  <td></td>
  <td>07/03/2026</td>
  <td>UNIT</td>
  <td></td>
</tr>
</table>
</body></html>`

func TestParseDocuments(t *testing.T) {
	sc := New(common.GetLogger())

	docs, err := sc.parseDocuments(documentsHTML)
	require.NoError(t, err)

	// Restricted rows, malformed numbers and typeless rows are skipped.
	require.Len(t, docs, 1)
	rec, ok := docs["11111111"]
	require.True(t, ok)
	assert.Equal(t, "Despacho", rec.Type)
	assert.Equal(t, "05/03/2026", rec.Date)
	assert.Equal(t, models.DocumentNotDownloaded, rec.Status)
	assert.Equal(t, "Maria Souza", rec.Signer)
}

func TestVersionAndFamily(t *testing.T) {
	sc := New(common.GetLogger())
	assert.Equal(t, "4.2.0", sc.Version())
	assert.Equal(t, "sei_v4", sc.Family())
}

type stubSession struct {
	tempDir string
}

func (s *stubSession) Ctx() context.Context { return context.Background() }
func (s *stubSession) TempDir() string      { return s.tempDir }
func (s *stubSession) Release()             {}

func TestRenderHTMLDownloadRemovesSource(t *testing.T) {
	sc := New(common.GetLogger())
	dir := t.TempDir()

	htmlPath := filepath.Join(dir, "download-guid")
	require.NoError(t, os.WriteFile(htmlPath, []byte("<html><body>doc</body></html>"), 0o644))

	origNavigate, origRender := navigateFn, renderPDFFn
	t.Cleanup(func() {
		navigateFn, renderPDFFn = origNavigate, origRender
	})
	var navigated string
	navigateFn = func(s interfaces.Session, url string) error {
		navigated = url
		return nil
	}
	renderPDFFn = func(s interfaces.Session, outPath string) error {
		return os.WriteFile(outPath, []byte("%PDF-1.7"), 0o644)
	}

	file, err := sc.renderHTMLDownload(&stubSession{tempDir: dir}, htmlPath, "11111111.html")
	require.NoError(t, err)

	assert.Equal(t, "file://"+htmlPath, navigated)
	assert.Equal(t, htmlPath+".pdf", file.Path)
	assert.Equal(t, "11111111.pdf", file.SuggestedName)
	assert.True(t, file.RenderedFromHTML)

	// Only the PDF remains; the HTML source is gone.
	_, err = os.Stat(file.Path)
	assert.NoError(t, err)
	_, err = os.Stat(htmlPath)
	assert.True(t, os.IsNotExist(err))
}
