package translator

// All returns every translator the site synchronizes, in registration order
func All() []Translator {
	return []Translator{
		Unit{},
		Item{},
		Name{},
		Store{},
		Location{},
		StockLine{},
		Requisition{},
		RequisitionLine{},
	}
}

// NewDefaultRegistry builds the registry over All
func NewDefaultRegistry() (*Registry, error) {
	return NewRegistry(All()...)
}
