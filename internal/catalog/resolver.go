package catalog

import (
	"go-inventory-agent/internal/apperr"
	"go-inventory-agent/internal/models"

	"github.com/shopspring/decimal"
)

// Resolution is the derived stock and price of a product.
type Resolution struct {
	Stock int             `json:"stock"`
	Price decimal.Decimal `json:"price"`
}

// Resolver derives bundle stock and price from components on every call.
// Nothing is cached: a component's stock can change under any bundle at any time.
type Resolver struct {
	multiplier decimal.Decimal
}

// NewResolver returns a resolver that scales bundle prices by multiplier (1 = plain sum).
func NewResolver(multiplier decimal.Decimal) *Resolver {
	if multiplier.IsZero() || multiplier.IsNegative() {
		multiplier = decimal.NewFromInt(1)
	}
	return &Resolver{multiplier: multiplier}
}

// Resolve returns a product's effective stock and price. Simple products
// answer with their own fields. Bundles need BundleComponents[i].Component loaded.
func (r *Resolver) Resolve(p *models.Product) (Resolution, error) {
	if !p.IsBundle {
		return Resolution{Stock: p.Stock, Price: p.Price}, nil
	}
	if len(p.BundleComponents) == 0 {
		return Resolution{Price: decimal.Zero}, nil
	}

	stock := -1
	price := decimal.Zero
	for _, bc := range p.BundleComponents {
		if bc.Component == nil {
			return Resolution{}, apperr.ProductNotFound(bc.ComponentID)
		}
		if bc.Quantity <= 0 {
			return Resolution{}, apperr.InvalidBundleFor(bc.ComponentID, "component %d has non-positive quantity %d", bc.ComponentID, bc.Quantity)
		}
		assemblable := bc.Component.Stock / bc.Quantity
		if assemblable < 0 {
			assemblable = 0
		}
		if stock < 0 || assemblable < stock {
			stock = assemblable
		}
		price = price.Add(bc.Component.Price.Mul(decimal.NewFromInt(int64(bc.Quantity))))
	}

	return Resolution{Stock: stock, Price: price.Mul(r.multiplier).Round(2)}, nil
}

// Apply writes the resolution into the product so it serializes with live values.
func (r *Resolver) Apply(p *models.Product) error {
	res, err := r.Resolve(p)
	if err != nil {
		return err
	}
	p.Stock = res.Stock
	p.Price = res.Price
	for i := range p.BundleComponents {
		if c := p.BundleComponents[i].Component; c != nil {
			p.BundleComponents[i].ComponentName = c.Name
		}
	}
	return nil
}

// ComponentInput is one requested (product, quantity) entry of a bundle.
type ComponentInput struct {
	ProductID uint `json:"product"`
	Quantity  int  `json:"quantity"`
}

// ValidateComposition checks a proposed composition for bundleID (0 when the
// bundle does not exist yet) against the current catalog graph.
func ValidateComposition(bundleID uint, components []ComponentInput, graph *CompositionGraph) error {
	if len(components) == 0 {
		return apperr.InvalidBundle("a bundle must contain at least one component")
	}

	seen := make(map[uint]struct{}, len(components))
	for _, c := range components {
		if c.Quantity < 1 {
			return apperr.InvalidBundleFor(c.ProductID, "component %d quantity must be at least 1", c.ProductID)
		}
		if c.Quantity > models.MaxQuantity {
			return apperr.InvalidBundleFor(c.ProductID, "component %d quantity must be at most %d", c.ProductID, models.MaxQuantity)
		}
		if _, dup := seen[c.ProductID]; dup {
			return apperr.InvalidBundleFor(c.ProductID, "component %d is listed more than once", c.ProductID)
		}
		seen[c.ProductID] = struct{}{}

		if bundleID != 0 && c.ProductID == bundleID {
			return apperr.InvalidBundleFor(c.ProductID, "a bundle cannot contain itself")
		}
		if !graph.Has(c.ProductID) {
			return apperr.ProductNotFound(c.ProductID)
		}
		if bundleID != 0 && graph.Reaches(c.ProductID, bundleID) {
			return apperr.InvalidBundleFor(c.ProductID, "component %d contains bundle %d (cycle)", c.ProductID, bundleID)
		}
		if graph.IsBundle(c.ProductID) {
			return apperr.InvalidBundleFor(c.ProductID, "component %d is itself a bundle; bundles of bundles are not allowed", c.ProductID)
		}
	}
	return nil
}

// CompositionGraph is the bundle → component graph of the catalog, held as
// an arena of nodes addressed by index rather than by object references.
type CompositionGraph struct {
	index    map[uint]int
	ids      []uint
	isBundle []bool
	edges    [][]int
}

// GraphNode is the minimal row needed to build a CompositionGraph.
type GraphNode struct {
	ID       uint
	IsBundle bool
}

// GraphEdge links a bundle to one of its components.
type GraphEdge struct {
	BundleID    uint
	ComponentID uint
}

// NewCompositionGraph indexes the catalog. Edges to unknown ids are dropped.
func NewCompositionGraph(nodes []GraphNode, edges []GraphEdge) *CompositionGraph {
	g := &CompositionGraph{
		index:    make(map[uint]int, len(nodes)),
		ids:      make([]uint, 0, len(nodes)),
		isBundle: make([]bool, 0, len(nodes)),
		edges:    make([][]int, len(nodes)),
	}
	for _, n := range nodes {
		if _, ok := g.index[n.ID]; ok {
			continue
		}
		g.index[n.ID] = len(g.ids)
		g.ids = append(g.ids, n.ID)
		g.isBundle = append(g.isBundle, n.IsBundle)
	}
	g.edges = g.edges[:len(g.ids)]
	for _, e := range edges {
		from, ok1 := g.index[e.BundleID]
		to, ok2 := g.index[e.ComponentID]
		if !ok1 || !ok2 {
			continue
		}
		g.edges[from] = append(g.edges[from], to)
	}
	return g
}

// Has reports whether id is a known product.
func (g *CompositionGraph) Has(id uint) bool {
	_, ok := g.index[id]
	return ok
}

// IsBundle reports whether id is a known bundle.
func (g *CompositionGraph) IsBundle(id uint) bool {
	i, ok := g.index[id]
	return ok && g.isBundle[i]
}

// Reaches walks the graph depth-first from `from` and reports whether `target`
// is reachable (from == target counts). Iterative, with a visited set, so
// malformed cyclic data cannot loop forever.
func (g *CompositionGraph) Reaches(from, target uint) bool {
	start, ok := g.index[from]
	if !ok {
		return false
	}
	goal, ok := g.index[target]
	if !ok {
		return false
	}

	visited := make([]bool, len(g.ids))
	stack := []int{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == goal {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		for _, next := range g.edges[n] {
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Dependents returns the ids of bundles that directly contain id.
func (g *CompositionGraph) Dependents(id uint) []uint {
	target, ok := g.index[id]
	if !ok {
		return nil
	}
	var out []uint
	for from, tos := range g.edges {
		for _, to := range tos {
			if to == target {
				out = append(out, g.ids[from])
				break
			}
		}
	}
	return out
}
