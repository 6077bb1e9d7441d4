package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

var header = []string{
	"PROYECTO", "COMUNA_INCOIN", "AÑO", "PERIODO", "LATITUD", "LONGITUD",
	"TIPOLOGIA", "STOCK INICIAL (PERIODO)", "UNIDADES/MES (AÑO)", "UF/M² PROMEDIO",
}

func joinRows(sep string, rows ...[]string) string {
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strings.Join(r, sep))
		b.WriteString("\n")
	}
	return b.String()
}

func TestReadTabSeparatedUTF8(t *testing.T) {
	data := joinRows("\t", header,
		[]string{"Edificio Sol", "Ñuñoa", "2024", "2P", "-334565", "-706600", "2D-2B", "10", "2,5", "85,3"},
		[]string{"Edificio Sol", "Ñuñoa", "2024", "2P", "-334565", "-706600", "1D-1B", "8", "1,5", "90,1"},
	)

	table, err := NewReader(DefaultMinColumns).Read([]byte(data), 0)
	require.NoError(t, err)

	assert.Equal(t, "utf-8", table.Encoding)
	assert.Equal(t, "TAB", table.DelimiterName())
	assert.Len(t, table.Headers, len(header))
	require.Len(t, table.Records, 2)

	rec := table.Records[0]
	assert.Equal(t, "Edificio Sol", rec.Name)
	assert.Equal(t, "Ñuñoa", rec.Commune)
	assert.Equal(t, "2024", rec.Year)
	assert.Equal(t, "2P", rec.Period)
	assert.Equal(t, "10", rec.Stock)
	assert.Equal(t, "2,5", rec.VelocityAnnual)
	assert.Equal(t, "85,3", rec.AvgPriceM2)
	assert.Equal(t, 2, rec.Line)
	assert.Equal(t, 3, table.Records[1].Line)

	assert.Equal(t, "STOCK INICIAL (PERIODO)", table.Columns["stock"])
	assert.Equal(t, "AÑO", table.Columns["year"])
}

func TestReadLatin1Semicolon(t *testing.T) {
	data := joinRows(";", header,
		[]string{"Parque Peñalolén", "Peñalolén", "2023", "1P", "-33,48", "-70,54", "3D-2B", "4.250", "1,0", "60,0"},
	)
	encoded, err := charmap.ISO8859_1.NewEncoder().String(data)
	require.NoError(t, err)

	table, err := NewReader(DefaultMinColumns).Read([]byte(encoded), 0)
	require.NoError(t, err)

	assert.Equal(t, "latin-1", table.Encoding)
	assert.Equal(t, ';', table.Delimiter)
	require.Len(t, table.Records, 1)
	assert.Equal(t, "Peñalolén", table.Records[0].Commune)
	assert.Equal(t, "4.250", table.Records[0].Stock)
	assert.Equal(t, "2023", table.Records[0].Year)
}

func TestReadCommaWithQuotedNumbers(t *testing.T) {
	data := "PROYECTO,COMUNA,AÑO,PERIODO,STOCK INICIAL,PRECIO MINIMO UF\n" +
		"Torre Norte,Antofagasta,2024,2P,\"1.200\",\"2.950,5\"\n"

	table, err := NewReader(DefaultMinColumns).Read([]byte(data), 0)
	require.NoError(t, err)

	assert.Equal(t, ',', table.Delimiter)
	require.Len(t, table.Records, 1)
	rec := table.Records[0]
	assert.Equal(t, "Antofagasta", rec.Commune)
	assert.Equal(t, "1.200", rec.Stock)
	assert.Equal(t, "2.950,5", rec.MinPrice)
	assert.Equal(t, "COMUNA", table.Columns["commune"])
}

func TestReadStripsBOMAndHeaderSpaces(t *testing.T) {
	data := "\ufeff PROYECTO \tcomuna_incoin\tAÑO\tPERIODO\tLATITUD\tLONGITUD\n" +
		"Alto\tTemuco\t2022\t1P\t-38,73\t-72,59\n"

	table, err := NewReader(DefaultMinColumns).Read([]byte(data), 0)
	require.NoError(t, err)

	assert.Equal(t, "PROYECTO", table.Headers[0])
	require.Len(t, table.Records, 1)
	assert.Equal(t, "Alto", table.Records[0].Name)
	assert.Equal(t, "Temuco", table.Records[0].Commune)
}

func TestReadLimit(t *testing.T) {
	rows := [][]string{header}
	for i := 0; i < 10; i++ {
		rows = append(rows, []string{"P", "C", "2024", "1P", "", "", "", "", "", ""})
	}

	table, err := NewReader(DefaultMinColumns).Read([]byte(joinRows("\t", rows...)), 5)
	require.NoError(t, err)
	assert.Len(t, table.Records, 5)
}

func TestReadSkipsBlankLinesAndShortRows(t *testing.T) {
	data := joinRows("\t", header,
		[]string{"", "", "", "", "", "", "", "", "", ""},
		[]string{"Solo", "Maipú"},
	)

	table, err := NewReader(DefaultMinColumns).Read([]byte(data), 0)
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	assert.Equal(t, "Maipú", table.Records[0].Commune)
	assert.Empty(t, table.Records[0].Year)
}

func TestReadTooFewColumns(t *testing.T) {
	data := "PROYECTO,COMUNA\nA,B\n"

	_, err := NewReader(DefaultMinColumns).Read([]byte(data), 0)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(joinRows("\t", header,
		[]string{"A", "B", "2024", "1P", "", "", "", "", "", ""},
	)), 0644))

	table, err := NewReader(DefaultMinColumns).ReadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, path, table.Path)

	_, err = NewReader(DefaultMinColumns).ReadFile(filepath.Join(dir, "missing.csv"), 0)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnreadable)
}

func TestReadSamplesFirstPresentValue(t *testing.T) {
	data := joinRows("\t", header,
		[]string{"Edificio Sol", "Ñuñoa", "2024", "2P", "-", "", "2D-2B", "10", "nan", "85,3"},
		[]string{"Edificio Sol", "Ñuñoa", "2024", "2P", "-334565", "", "1D-1B", "8", "1,5", "90,1"},
	)

	table, err := NewReader(DefaultMinColumns).Read([]byte(data), 0)
	require.NoError(t, err)

	require.Len(t, table.Samples, len(header))
	assert.Equal(t, "Edificio Sol", table.Samples[0])
	assert.Equal(t, "-334565", table.Samples[4])
	assert.Equal(t, "", table.Samples[5])
	assert.Equal(t, "1,5", table.Samples[8])
}
