package legacy

// Legacy table names used on the wire
const (
	TableUnit            = "unit"
	TableItem            = "item"
	TableName            = "name"
	TableStore           = "store"
	TableLocation        = "Location"
	TableItemLine        = "item_line"
	TableRequisition     = "requisition"
	TableRequisitionLine = "requisition_line"
)

// Unit is the wire form of a unit of measure
type Unit struct {
	ID          string `json:"ID"`
	Units       string `json:"units"`
	Comment     string `json:"comment"`
	OrderNumber int32  `json:"order_number"`
	Active      bool   `json:"active"`
}

// Item is the wire form of a catalogue item
type Item struct {
	ID              string  `json:"ID"`
	ItemName        string  `json:"item_name"`
	Code            string  `json:"code"`
	UnitID          string  `json:"unit_ID"`
	TypeOf          string  `json:"type_of"`
	DefaultPackSize float64 `json:"default_pack_size"`
	Active          bool    `json:"active"`
}

// Name is the wire form of a customer, supplier, patient or store name
type Name struct {
	ID          string `json:"ID"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Type        string `json:"type"`
	Customer    bool   `json:"customer"`
	Supplier    bool   `json:"supplier"`
	First       string `json:"first"`
	Last        string `json:"last"`
	DateOfBirth string `json:"date_of_birth"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Comment     string `json:"comment"`
}

// Store is the wire form of a store
type Store struct {
	ID               string `json:"ID"`
	NameID           string `json:"name_ID"`
	Code             string `json:"code"`
	SyncIDRemoteSite int32  `json:"sync_id_remote_site"`
	StoreMode        string `json:"store_mode"`
	Type             string `json:"type"`
	Disabled         bool   `json:"disabled"`
}

// Location is the wire form of a storage location
type Location struct {
	ID          string `json:"ID"`
	Description string `json:"Description"`
	Code        string `json:"code"`
	Hold        bool   `json:"hold"`
	StoreID     string `json:"store_ID"`
}

// ItemLine is the wire form of a stock line
type ItemLine struct {
	ID         string  `json:"ID"`
	ItemID     string  `json:"item_ID"`
	StoreID    string  `json:"store_ID"`
	LocationID string  `json:"location_ID"`
	Batch      string  `json:"batch"`
	ExpiryDate string  `json:"expiry_date"`
	PackSize   float64 `json:"pack_size"`
	CostPrice  float64 `json:"cost_price"`
	SellPrice  float64 `json:"sell_price"`
	Available  float64 `json:"available"`
	Quantity   float64 `json:"quantity"`
	Hold       bool    `json:"hold"`
	Note       string  `json:"note"`
	NameID     string  `json:"name_ID"`

	// legacy-only, dropped on pull
	Barcode string `json:"barcode,omitempty"`
}

// Requisition is the wire form of a requisition
type Requisition struct {
	ID           string  `json:"ID"`
	SerialNumber int64   `json:"serial_number"`
	NameID       string  `json:"name_ID"`
	StoreID      string  `json:"store_ID"`
	Type         string  `json:"type"`
	Status       string  `json:"status"`
	DateEntered  string  `json:"date_entered"`
	TimeEntered  int64   `json:"time_entered"`
	Comment      string  `json:"comment"`
	TheirRef     string  `json:"their_ref"`
	MaxMOS       float64 `json:"max_MOS"`
	MinMOS       float64 `json:"min_MOS"`
}

// RequisitionLine is the wire form of one requisition line
type RequisitionLine struct {
	ID                string  `json:"ID"`
	RequisitionID     string  `json:"requisition_ID"`
	ItemID            string  `json:"item_ID"`
	CustStockOrder    float64 `json:"Cust_stock_order"`
	SuggestedQuantity float64 `json:"suggested_quantity"`
	ActualQuan        float64 `json:"actualQuan"`
	StockOnHand       float64 `json:"stock_on_hand"`
	Comment           string  `json:"comment"`
}
