package ingest

import (
	"strings"

	"tinsa/importer/internal/models"
)

// column binds a canonical field to the header names it has appeared under
// across export versions, in order of preference.
type column struct {
	field   string
	aliases []string
	set     func(r *models.RawRecord, v string)
}

var columns = []column{
	{"name", []string{"PROYECTO"}, func(r *models.RawRecord, v string) { r.Name = v }},
	{"commune", []string{"COMUNA_INCOIN", "COMUNA"}, func(r *models.RawRecord, v string) { r.Commune = v }},
	{"region", []string{"REGION", "REGIÓN"}, func(r *models.RawRecord, v string) { r.Region = v }},
	{"zone", []string{"ZONA"}, func(r *models.RawRecord, v string) { r.Zone = v }},
	{"address", []string{"DIRECCION", "DIRECCIÓN"}, func(r *models.RawRecord, v string) { r.Address = v }},
	{"street_number", []string{"NUMERO", "NÚMERO"}, func(r *models.RawRecord, v string) { r.StreetNumber = v }},
	{"developer", []string{"DESARROLLADOR"}, func(r *models.RawRecord, v string) { r.Developer = v }},
	{"seller", []string{"VENDE"}, func(r *models.RawRecord, v string) { r.Seller = v }},
	{"builder", []string{"CONSTRUYE"}, func(r *models.RawRecord, v string) { r.Builder = v }},
	{"property_type", []string{"TIPO DE PROPIEDAD"}, func(r *models.RawRecord, v string) { r.PropertyType = v }},
	{"category", []string{"TIPO CATEGORIA", "TIPO CATEGORÍA"}, func(r *models.RawRecord, v string) { r.Category = v }},
	{"project_status", []string{"ESTADO PROYECTO (PERIODO)", "ESTADO PROYECTO"}, func(r *models.RawRecord, v string) { r.ProjectStatus = v }},
	{"construction_status", []string{"ESTADO OBRA (PERIODO)", "ESTADO OBRA"}, func(r *models.RawRecord, v string) { r.ConstructionStatus = v }},
	{"subsidy_type", []string{"TIPO DE SUBSIDIO"}, func(r *models.RawRecord, v string) { r.SubsidyType = v }},
	{"latitude", []string{"LATITUD"}, func(r *models.RawRecord, v string) { r.Latitude = v }},
	{"longitude", []string{"LONGITUD"}, func(r *models.RawRecord, v string) { r.Longitude = v }},
	{"year", []string{"AÑO", "ANO", "ANIO"}, func(r *models.RawRecord, v string) { r.Year = v }},
	{"period", []string{"PERIODO"}, func(r *models.RawRecord, v string) { r.Period = v }},
	{"stock", []string{"STOCK INICIAL (PERIODO)", "STOCK INICIAL"}, func(r *models.RawRecord, v string) { r.Stock = v }},
	{"available", []string{"OFERTA DISPONIBLE (PERIODO)", "OFERTA DISPONIBLE"}, func(r *models.RawRecord, v string) { r.Available = v }},
	{"sold", []string{"UNIDADES VENDIDAS (PERIODO)", "UNIDADES VENDIDAS"}, func(r *models.RawRecord, v string) { r.Sold = v }},
	{"period_offer", []string{"OFERTA DEL PERIODO"}, func(r *models.RawRecord, v string) { r.PeriodOffer = v }},
	{"velocity_annual", []string{"UNIDADES/MES (AÑO)", "UNIDADES/MES (A)"}, func(r *models.RawRecord, v string) { r.VelocityAnnual = v }},
	{"velocity_period", []string{"UNIDADES/MES (PERIODO)", "UNIDADES/MES (P)"}, func(r *models.RawRecord, v string) { r.VelocityPeriod = v }},
	{"months_to_sell_out", []string{"MESES PARA AGOTAR STOCK (PERIODO)", "MESES PARA AGOTAR STOCK (A)"}, func(r *models.RawRecord, v string) { r.MonthsToSell = v }},
	{"months_on_sale", []string{"MESES EN VENTA (PERIODO)", "MESES EN VENTA"}, func(r *models.RawRecord, v string) { r.MonthsOnSale = v }},
	{"min_price", []string{"PRECIO MINIMO UF", "PRECIO MÍNIMO UF"}, func(r *models.RawRecord, v string) { r.MinPrice = v }},
	{"max_price", []string{"PRECIO MAXIMO UF", "PRECIO MÁXIMO UF"}, func(r *models.RawRecord, v string) { r.MaxPrice = v }},
	{"avg_price", []string{"PRECIO PROMEDIO"}, func(r *models.RawRecord, v string) { r.AvgPrice = v }},
	{"avg_price_m2", []string{"UF/M² PROMEDIO", "UF/M2 PROMEDIO"}, func(r *models.RawRecord, v string) { r.AvgPriceM2 = v }},
	{"floors", []string{"NRO. PISOS", "NRO PISOS"}, func(r *models.RawRecord, v string) { r.Floors = v }},
	{"parking_count", []string{"CANT ESTACIONAMIENTOS"}, func(r *models.RawRecord, v string) { r.ParkingCnt = v }},
	{"parking_price", []string{"PRECIO ESTACIONAMIENTO"}, func(r *models.RawRecord, v string) { r.ParkingCost = v }},
	{"storage_price", []string{"PRECIO BODEGA"}, func(r *models.RawRecord, v string) { r.StorageCost = v }},
	{"pilot_available", []string{"PILOTO DISPONIBLE"}, func(r *models.RawRecord, v string) { r.PilotAvailable = v }},
	{"sales_room", []string{"SALA DE VENTAS EN EL PROYECTO"}, func(r *models.RawRecord, v string) { r.SalesRoom = v }},
	{"discount", []string{"DESCUENTO PROMEDIO"}, func(r *models.RawRecord, v string) { r.Discount = v }},
	{"sales_start", []string{"INICIO VENTAS"}, func(r *models.RawRecord, v string) { r.SalesStart = v }},
	{"delivery", []string{"FECHA ENTREGA ESTIMADA"}, func(r *models.RawRecord, v string) { r.Delivery = v }},
	{"typology_code", []string{"TIPOLOGIA", "TIPOLOGÍA"}, func(r *models.RawRecord, v string) { r.TypologyCode = v }},
	{"typology_name", []string{"NOMBRE TIPOLOGIA", "NOMBRE TIPOLOGÍA"}, func(r *models.RawRecord, v string) { r.TypologyName = v }},
	{"surface", []string{"SUPERFICIE PROMEDIO"}, func(r *models.RawRecord, v string) { r.Surface = v }},
	{"terrace", []string{"SUP TERRAZA PROMEDIO"}, func(r *models.RawRecord, v string) { r.Terrace = v }},
	{"land_surface", []string{"SUPERFICIE TERRENO"}, func(r *models.RawRecord, v string) { r.LandSurface = v }},
	{"kitchen_type", []string{"TIPO DE COCINA"}, func(r *models.RawRecord, v string) { r.KitchenType = v }},
	{"parking_spots", []string{"PLAZAS"}, func(r *models.RawRecord, v string) { r.ParkingSpots = v }},
}

// binding is a resolved column: the header position feeding one field.
type binding struct {
	index  int
	header string
	set    func(r *models.RawRecord, v string)
}

// resolveColumns matches the header row against the alias table once per
// file. Matching ignores case and surrounding spaces. Fields without any
// matching header are left out and stay empty on every record.
func resolveColumns(headers []string) ([]binding, map[string]string) {
	position := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToUpper(strings.TrimSpace(h))
		if _, seen := position[key]; !seen {
			position[key] = i
		}
	}

	var bindings []binding
	matched := make(map[string]string)
	for _, c := range columns {
		for _, alias := range c.aliases {
			i, ok := position[strings.ToUpper(alias)]
			if !ok {
				continue
			}
			bindings = append(bindings, binding{index: i, header: headers[i], set: c.set})
			matched[c.field] = headers[i]
			break
		}
	}
	return bindings, matched
}
