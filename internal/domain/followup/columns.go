package followup

import "github.com/ufmn/followup/internal/platform/table"

// Identifier columns shared by every follow-up source.
const (
	PatientIDColumn = "id_paciente"
	VisitDateColumn = "fecha_visita"

	// ResampleDateColumn holds the calendar date of a resampled row.
	ResampleDateColumn = "fecha"
)

// Source datasets, as named by the data loaders.
const (
	DatasetALS         = "ufmn/als_data"
	DatasetNutrition   = "ufmn/nutr_data"
	DatasetRespiratory = "ufmn/resp_data"
	DatasetPatients    = "ufmn/patients"
)

// ALSFRS-R items.
const (
	ColLenguaje       = "lenguaje"
	ColSalivacion     = "salivacion"
	ColDeglucion      = "deglucion"
	ColEscritura      = "escritura"
	ColCortar         = "cortar"
	ColCortarSinPEG   = "cortar_sin_peg"
	ColCortarConPEG   = "cortar_con_peg"
	ColVestido        = "vestido"
	ColCama           = "cama"
	ColCaminar        = "caminar"
	ColSubirEscaleras = "subir_escaleras"
	ColDisnea         = "disnea"
	ColOrtopnea       = "ortopnea"
	ColInsufResp      = "insuf_resp"
)

const (
	ColPortadorVMNI      = "portador_vmni"
	ColIndicacionPEG     = "indicacion_peg"
	ColPortadorPEG       = "portador_peg"
	ColDisfagia          = "disfagia"
	ColEspesante         = "espesante"
	ColInicioEspesante   = "inicio_espesante"
	ColSuplOral          = "supl_oral"
	ColInicioSuplOral    = "inicio_supl_oral"
	ColSuplEnteral       = "supl_enteral"
	ColInicioSuplEnteral = "inicio_supl_enteral"
)

// Derived columns.
const (
	ColKingsC        = "kings_c"
	ColMitosC        = "mitos_c"
	ColALSFRSBulbarC = "alsfrs_bulbar_c"
	ColALSFRSMotorFC = "alsfrs_motorf_c"
	ColALSFRSMotorGC = "alsfrs_motorg_c"
	ColALSFRSRespC   = "alsfrs_resp_c"
	ColALSFRSTotalC  = "alsfrs_total_c"
)

// CarryForwardColumns persist across visits where they were not re-asked.
var CarryForwardColumns = []string{
	ColPortadorVMNI,
	ColIndicacionPEG,
	ColPortadorPEG,
	ColDisfagia,
	ColEspesante,
	ColInicioEspesante,
	ColSuplOral,
	ColInicioSuplOral,
	ColSuplEnteral,
	ColInicioSuplEnteral,
}

var (
	ALSFRSBulbarColumns = []string{ColLenguaje, ColSalivacion, ColDeglucion}
	ALSFRSMotorFColumns = []string{ColEscritura, ColCortar, ColVestido}
	ALSFRSMotorGColumns = []string{ColCama, ColCaminar, ColSubirEscaleras}
	ALSFRSRespColumns   = []string{ColDisnea, ColOrtopnea, ColInsufResp}

	ALSFRSTotalColumns = []string{
		ColLenguaje,
		ColSalivacion,
		ColDeglucion,
		ColEscritura,
		ColCortar,
		ColVestido,
		ColCama,
		ColCaminar,
		ColSubirEscaleras,
		ColDisnea,
		ColOrtopnea,
		ColInsufResp,
	}
)

// ExportColumns is the column order of the follow-up export.
var ExportColumns = []string{
	"nhc",
	VisitDateColumn,
	ColLenguaje,
	ColSalivacion,
	ColDeglucion,
	ColEscritura,
	ColCortarSinPEG,
	ColCortarConPEG,
	ColCortar,
	ColVestido,
	ColCama,
	ColCaminar,
	ColSubirEscaleras,
	ColDisnea,
	ColOrtopnea,
	ColInsufResp,
	"alsfrs_total",
	ColALSFRSTotalC,
	"alsfrs_bulbar",
	ColALSFRSBulbarC,
	ColALSFRSMotorFC,
	ColALSFRSMotorGC,
	ColALSFRSRespC,
	ColIndicacionPEG,
	ColPortadorPEG,
	"kings",
	ColKingsC,
	"mitos",
	ColMitosC,
}

// Schema types the columns this package reads. Columns not listed load as
// strings.
func Schema() map[string]table.Kind {
	s := map[string]table.Kind{
		PatientIDColumn:      table.KindString,
		VisitDateColumn:      table.KindDate,
		ResampleDateColumn:   table.KindDate,
		ColCortarSinPEG:      table.KindInt,
		ColCortarConPEG:      table.KindInt,
		ColInicioEspesante:   table.KindDate,
		ColInicioSuplOral:    table.KindDate,
		ColInicioSuplEnteral: table.KindDate,
		"alsfrs_total":       table.KindInt,
		"alsfrs_bulbar":      table.KindInt,
		"kings":              table.KindInt,
		"mitos":              table.KindInt,
		"nhc":                table.KindString,
	}
	for _, c := range ALSFRSTotalColumns {
		s[c] = table.KindInt
	}
	for _, c := range []string{ColPortadorVMNI, ColIndicacionPEG, ColPortadorPEG, ColDisfagia, ColEspesante, ColSuplOral, ColSuplEnteral} {
		s[c] = table.KindBool
	}
	for _, c := range []string{ColKingsC, ColMitosC, ColALSFRSBulbarC, ColALSFRSMotorFC, ColALSFRSMotorGC, ColALSFRSRespC, ColALSFRSTotalC} {
		s[c] = table.KindInt
	}
	return s
}
