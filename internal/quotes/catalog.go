package quotes

// flatRubroUnit labels the single rubro created for catalog items priced flat.
const flatRubroUnit = "global"

// ItemFromCatalog builds a new item from a catalog template. The template's
// rubros are deep-copied; a template without rubros becomes one
// professional-services rubro at the flat price, so the subtotal still equals
// the sum of its rubros.
func ItemFromCatalog(ci CatalogItem, position int) Item {
	item := Item{Name: ci.Name, Position: position}
	if len(ci.Rubros) == 0 {
		item.Rubros = []Rubro{{
			Category:    CategoryProfessionalServices,
			Description: ci.Name,
			Quantity:    1,
			Unit:        flatRubroUnit,
			UnitPrice:   ci.Price,
		}}
	} else {
		item.Rubros = make([]Rubro, 0, len(ci.Rubros))
		for _, tpl := range ci.Rubros {
			item.Rubros = append(item.Rubros, Rubro{
				Category:    tpl.Category,
				Description: tpl.Description,
				Quantity:    tpl.Quantity,
				Unit:        tpl.Unit,
				UnitPrice:   tpl.UnitPrice,
			})
		}
	}
	for i := range item.Rubros {
		item.Rubros[i].Total = RubroTotal(item.Rubros[i])
	}
	item.Subtotal = ItemSubtotal(item)
	return item
}

// TemplateTotal is the subtotal a catalog item seeds.
func TemplateTotal(ci CatalogItem) float64 {
	return ItemFromCatalog(ci, 0).Subtotal
}
