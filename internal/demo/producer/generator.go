package producer

import (
	"fmt"
	"math/rand"
)

var (
	categories = []string{"Electronics", "Clothing", "Home", "Books"}
	cities     = []string{"Bangalore", "Chennai", "Mumbai", "Pune", "Delhi", "Jaipur"}
	statuses   = []string{"Pending", "Shipped", "Delivered", "Cancelled"}
	products   = []string{"Laptop", "Headphones", "Jeans", "Blender", "Novel", "Smartwatch"}
)

// readTemplates take one argument each; %[1]v may be a string or an int.
var readTemplates = []struct {
	format string
	pick   func(*rand.Rand) any
}{
	{format: "Show all products in the %v category", pick: func(r *rand.Rand) any { return pickOne(r, categories) }},
	{format: "List customers who live in %v", pick: func(r *rand.Rand) any { return pickOne(r, cities) }},
	{format: "How many orders are %v?", pick: func(r *rand.Rand) any { return pickOne(r, statuses) }},
	{format: "Top %v most expensive products", pick: func(r *rand.Rand) any { return 3 + r.Intn(8) }},
	{format: "Which customers bought a %v?", pick: func(r *rand.Rand) any { return pickOne(r, products) }},
	{format: "Total revenue per category for %v orders", pick: func(r *rand.Rand) any { return pickOne(r, statuses) }},
	{format: "Products with fewer than %v items in stock", pick: func(r *rand.Rand) any { return 10 + 5*r.Intn(6) }},
	{format: "Average order value for customers in %v", pick: func(r *rand.Rand) any { return pickOne(r, cities) }},
}

var mutationTemplates = []struct {
	format string
	pick   func(*rand.Rand) any
}{
	{format: "Add a new product called Demo Item %v in Home priced at 499", pick: func(r *rand.Rand) any { return r.Intn(10000) }},
	{format: "Update the stock of %v to 42", pick: func(r *rand.Rand) any { return pickOne(r, products) }},
	{format: "Remove orders with status Cancelled placed by customers in %v", pick: func(r *rand.Rand) any { return pickOne(r, cities) }},
}

// Generator produces shop questions from a seeded source, so a seed replays
// the same sequence.
type Generator struct {
	rnd              *rand.Rand
	includeMutations bool
	sequence         int64
}

func NewGenerator(seed int64, includeMutations bool) *Generator {
	return &Generator{
		rnd:              rand.New(rand.NewSource(seed)),
		includeMutations: includeMutations,
	}
}

func (g *Generator) NextQuestion() string {
	g.sequence++
	if g.includeMutations && g.rnd.Intn(100) < 20 {
		tpl := mutationTemplates[g.rnd.Intn(len(mutationTemplates))]
		return fmt.Sprintf(tpl.format, tpl.pick(g.rnd))
	}
	tpl := readTemplates[g.rnd.Intn(len(readTemplates))]
	return fmt.Sprintf(tpl.format, tpl.pick(g.rnd))
}

func (g *Generator) Sequence() int64 {
	return g.sequence
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
