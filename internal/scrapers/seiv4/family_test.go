package seiv4

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLink(t *testing.T) {
	assert.Equal(t, "abc123",
		NormalizeLink("/controlador_externo.php?acao=procedimento_visualizar&id_procedimento_externo=abc123"))
	assert.Equal(t, "abc123",
		NormalizeLink("https://sei.example.gov.br/x?id_procedimento_externo=abc123&infra_sistema=1"))
	assert.Equal(t, "", NormalizeLink("/controlador_externo.php?acao=procedimento_visualizar"))
	assert.Equal(t, "", NormalizeLink(""))
}
