package seiv4

import "github.com/conectasei/conectasei/internal/interfaces"

// Selector tables for the v4 interface line. Individual versions override
// pieces as the upstream layout drifts.

// LoginSelectors is the v4 login form.
var LoginSelectors = interfaces.LoginSelectors{
	EmailInput:    "#txtEmail",
	PasswordInput: "#pwdSenha",
	SubmitButton:  "#sbmLogin",
	ErrorMessage:  "#divInfraMsg, .alert-danger",
}

// ProcessSelectors is the v4 process listing and view chrome.
var ProcessSelectors = interfaces.ProcessSelectors{
	ProcessTable:   "#tblDocumentos",
	ProcessRow:     "#tblDocumentos tbody tr",
	ProcessLink:    `td[align="center"] a`,
	Breadcrumb:     "#divInfraBarraLocalizacao",
	AuthorityLabel: "#tblDocumentos tbody tr:nth-child(2) td:nth-child(5) a",
	UnitColumn:     "#selInfraUnidades",
}

// DocumentSelectors is the v4 document tree inside an open process.
var DocumentSelectors = interfaces.DocumentSelectors{
	DocumentTable: "#tblDocumentos",
	DocumentRow:   "#tblDocumentos tr.infraTrClara",
	DocumentLink:  "td:nth-child(2) a",
	SignerColumn:  "td:nth-child(6)",
	DateColumn:    "td:nth-child(4)",
	TypeColumn:    "td:nth-child(3)",
}

// Breadcrumb phrases distinguishing full from restricted views.
var (
	IntegralKeywords = []string{"Visualização Integral"}
	PartialKeywords  = []string{"Acesso Parcial", "Visualização Parcial"}
)

// Logged-in marker present on every authenticated page.
const LoggedInSelector = "#lnkUsuarioSistema, #lnkInfraSair"

// URL paths of the external access controller.
const (
	ProcessListPath = "/controlador_externo.php?acao=usuario_externo_documento_listar"
	ProcessViewPath = "/controlador_externo.php?acao=procedimento_visualizar&id_procedimento_externo="
)
