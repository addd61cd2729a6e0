package discovery

import (
	"reflect"
	"testing"

	"github.com/schemalens/schemalens/pkg/metadata"
)

func purchasingEntities() []metadata.Entity {
	return []metadata.Entity{
		{
			Name: "PurchaseOrder",
			Columns: []metadata.Column{
				{Name: "PurchaseOrder", DataType: "nvarchar", IsPrimaryKey: true},
				{Name: "Supplier", DataType: "nvarchar"},
			},
		},
		{
			Name: "Supplier",
			Columns: []metadata.Column{
				{Name: "Supplier", DataType: "nvarchar", IsPrimaryKey: true},
			},
		},
	}
}

func TestDiscover_ExactMatchWithPrimaryKey(t *testing.T) {
	relationships := Discover(purchasingEntities())

	if len(relationships) != 1 {
		t.Fatalf("expected exactly 1 relationship, got %d: %+v", len(relationships), relationships)
	}

	rel := relationships[0]
	if rel.FromEntity != "PurchaseOrder" || rel.FromColumn != "Supplier" {
		t.Fatalf("expected source PurchaseOrder.Supplier, got %s.%s", rel.FromEntity, rel.FromColumn)
	}
	if rel.ToEntity != "Supplier" || rel.ToColumn != "Supplier" {
		t.Fatalf("expected target Supplier.Supplier, got %s.%s", rel.ToEntity, rel.ToColumn)
	}
	if rel.Confidence < 0.9 {
		t.Fatalf("expected confidence >= 0.9 for exact + PK match, got %f", rel.Confidence)
	}
	if rel.Kind != KindForeignKey {
		t.Fatalf("expected kind %q, got %q", KindForeignKey, rel.Kind)
	}
	if rel.Method != MethodExact {
		t.Fatalf("expected method %q, got %q", MethodExact, rel.Method)
	}
}

func TestDiscover_Deterministic(t *testing.T) {
	entities := []metadata.Entity{
		{Name: "Material", Columns: []metadata.Column{
			{Name: "Material", DataType: "nvarchar", IsPrimaryKey: true},
			{Name: "Plant", DataType: "nvarchar"},
			{Name: "SupplierID", DataType: "nvarchar"},
		}},
		{Name: "Plant", Columns: []metadata.Column{
			{Name: "Plant", DataType: "nvarchar", IsPrimaryKey: true},
		}},
		{Name: "Supplier", Columns: []metadata.Column{
			{Name: "Supplier", DataType: "nvarchar", IsPrimaryKey: true},
		}},
	}

	first := Discover(entities)
	for i := 0; i < 25; i++ {
		again := Discover(entities)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("discovery is not deterministic:\nfirst: %+v\nagain: %+v", first, again)
		}
	}
}

func TestDiscover_ConfidenceBounds(t *testing.T) {
	entities := []metadata.Entity{
		{Name: "Order", Columns: []metadata.Column{
			{Name: "OrderNo", DataType: "int", IsPrimaryKey: true},
			{Name: "Customer", DataType: "nvarchar"},
			{Name: "WarehouseCode", DataType: "int"},
		}},
		{Name: "Customer", Columns: []metadata.Column{
			{Name: "Customer", DataType: "nvarchar", IsPrimaryKey: true},
		}},
		{Name: "Warehouse", Columns: []metadata.Column{
			{Name: "Warehouse", DataType: "nvarchar", IsPrimaryKey: true},
		}},
	}

	for _, rel := range Discover(entities) {
		if rel.Confidence < 0 || rel.Confidence > 1 {
			t.Fatalf("confidence out of bounds for %+v", rel)
		}
	}
}

// Adding a corroborating signal to an otherwise identical candidate must
// strictly raise the confidence, as long as the cap is not hit.
func TestDiscover_SignalsIncreaseConfidence(t *testing.T) {
	base := Discover([]metadata.Entity{
		{Name: "Order", Columns: []metadata.Column{
			{Name: "OrderNo", DataType: "int", IsPrimaryKey: true},
			{Name: "Depot", DataType: "int"},
		}},
		{Name: "Depot", Columns: []metadata.Column{
			{Name: "Depot", DataType: "nvarchar"},
		}},
	})

	withType := Discover([]metadata.Entity{
		{Name: "Order", Columns: []metadata.Column{
			{Name: "OrderNo", DataType: "int", IsPrimaryKey: true},
			{Name: "Depot", DataType: "nvarchar"},
		}},
		{Name: "Depot", Columns: []metadata.Column{
			{Name: "Depot", DataType: "nvarchar"},
		}},
	})

	withTypeAndPK := Discover([]metadata.Entity{
		{Name: "Order", Columns: []metadata.Column{
			{Name: "OrderNo", DataType: "int", IsPrimaryKey: true},
			{Name: "Depot", DataType: "nvarchar"},
		}},
		{Name: "Depot", Columns: []metadata.Column{
			{Name: "Depot", DataType: "nvarchar", IsPrimaryKey: true},
		}},
	})

	if len(base) != 1 || len(withType) != 1 || len(withTypeAndPK) != 1 {
		t.Fatalf("expected one relationship per scenario, got %d/%d/%d", len(base), len(withType), len(withTypeAndPK))
	}
	if !(base[0].Confidence < withType[0].Confidence) {
		t.Fatalf("type match did not raise confidence: %f vs %f", base[0].Confidence, withType[0].Confidence)
	}
	if !(withType[0].Confidence < withTypeAndPK[0].Confidence) {
		t.Fatalf("PK match did not raise confidence: %f vs %f", withType[0].Confidence, withTypeAndPK[0].Confidence)
	}
}

func TestDiscover_PrimaryKeysAreNeverCandidates(t *testing.T) {
	entities := []metadata.Entity{
		{Name: "Supplier", Columns: []metadata.Column{
			{Name: "Supplier", DataType: "nvarchar", IsPrimaryKey: true},
		}},
		{Name: "Contract", Columns: []metadata.Column{
			// PK named after another entity must still be skipped.
			{Name: "Supplier", DataType: "nvarchar", IsPrimaryKey: true},
		}},
	}

	if relationships := Discover(entities); len(relationships) != 0 {
		t.Fatalf("expected no relationships from PK columns, got %+v", relationships)
	}
}

func TestDiscover_SelfReferenceKept(t *testing.T) {
	entities := []metadata.Entity{
		{Name: "CostCenter", Columns: []metadata.Column{
			{Name: "ID", DataType: "nvarchar", IsPrimaryKey: true},
			{Name: "CostCenter", DataType: "nvarchar"},
		}},
	}

	relationships := Discover(entities)
	if len(relationships) != 1 {
		t.Fatalf("expected hierarchical self-reference, got %+v", relationships)
	}
	if relationships[0].FromEntity != "CostCenter" || relationships[0].ToEntity != "CostCenter" {
		t.Fatalf("expected CostCenter -> CostCenter, got %+v", relationships[0])
	}
}

func TestDiscover_SuffixHeuristic(t *testing.T) {
	entities := []metadata.Entity{
		{Name: "Delivery", Columns: []metadata.Column{
			{Name: "Delivery", DataType: "nvarchar", IsPrimaryKey: true},
			{Name: "CarrierID", DataType: "nvarchar"},
			{Name: "RouteCode", DataType: "nvarchar"},
			{Name: "ID", DataType: "nvarchar"},
		}},
		{Name: "Carrier", Columns: []metadata.Column{
			{Name: "Carrier", DataType: "nvarchar", IsPrimaryKey: true},
		}},
		{Name: "Route", Columns: []metadata.Column{
			{Name: "Route", DataType: "nvarchar", IsPrimaryKey: true},
		}},
	}

	relationships := Discover(entities)
	if len(relationships) != 2 {
		t.Fatalf("expected 2 suffix-derived relationships, got %+v", relationships)
	}

	byColumn := make(map[string]Relationship)
	for _, rel := range relationships {
		byColumn[rel.FromColumn] = rel
	}

	carrier, ok := byColumn["CarrierID"]
	if !ok || carrier.ToEntity != "Carrier" {
		t.Fatalf("expected CarrierID -> Carrier, got %+v", byColumn)
	}
	if carrier.Method != MethodSuffix {
		t.Fatalf("expected suffix method, got %q", carrier.Method)
	}
	route, ok := byColumn["RouteCode"]
	if !ok || route.ToEntity != "Route" {
		t.Fatalf("expected RouteCode -> Route, got %+v", byColumn)
	}
	if _, ok := byColumn["ID"]; ok {
		t.Fatal("bare ID column must not produce a relationship")
	}
}

// A column that matches one entity exactly and another by suffix keeps only
// the highest-confidence candidate.
func TestDiscover_TieResolution(t *testing.T) {
	entities := []metadata.Entity{
		{Name: "Booking", Columns: []metadata.Column{
			{Name: "Booking", DataType: "nvarchar", IsPrimaryKey: true},
			{Name: "FlightID", DataType: "nvarchar"},
		}},
		// Exact match target; its name column is a PK, so this wins.
		{Name: "FlightID", Columns: []metadata.Column{
			{Name: "FlightID", DataType: "nvarchar", IsPrimaryKey: true},
		}},
		// Suffix match target with a weaker score.
		{Name: "Flight", Columns: []metadata.Column{
			{Name: "Flight", DataType: "int"},
		}},
	}

	relationships := Discover(entities)
	if len(relationships) != 1 {
		t.Fatalf("expected a single winning relationship, got %+v", relationships)
	}
	if relationships[0].ToEntity != "FlightID" {
		t.Fatalf("expected exact match to win, got %+v", relationships[0])
	}
}

func TestDiscover_FuzzyMatchingOptIn(t *testing.T) {
	entities := []metadata.Entity{
		{Name: "Shipment", Columns: []metadata.Column{
			{Name: "Shipment", DataType: "nvarchar", IsPrimaryKey: true},
			{Name: "Suplier", DataType: "nvarchar"}, // misspelled reference
		}},
		{Name: "Supplier", Columns: []metadata.Column{
			{Name: "Supplier", DataType: "nvarchar", IsPrimaryKey: true},
		}},
	}

	if relationships := Discover(entities); len(relationships) != 0 {
		t.Fatalf("fuzzy matching must be off by default, got %+v", relationships)
	}

	relationships := Config{Fuzzy: true}.Discover(entities)
	if len(relationships) != 1 {
		t.Fatalf("expected fuzzy relationship, got %+v", relationships)
	}
	rel := relationships[0]
	if rel.ToEntity != "Supplier" || rel.Method != MethodFuzzy {
		t.Fatalf("expected fuzzy Suplier -> Supplier, got %+v", rel)
	}
	if rel.Confidence > 0.95 {
		t.Fatalf("fuzzy match must score below an exact match, got %f", rel.Confidence)
	}
}
