package power

// Status is a snapshot of a graph's aggregates.
type Status struct {
	ID         ID      `json:"ID" bson:"id"`
	Nodes      int     `json:"Nodes" bson:"nodes"`
	Producers  int     `json:"Producers" bson:"producers"`
	Consumers  int     `json:"Consumers" bson:"consumers"`
	Storages   int     `json:"Storages" bson:"storages"`
	Generation float64 `json:"Generation" bson:"generation"`
	Demand     float64 `json:"Demand" bson:"demand"`
	Stored     float64 `json:"Stored" bson:"stored"`
	Capacity   float64 `json:"Capacity" bson:"capacity"`
	Coverage   float64 `json:"Coverage" bson:"coverage"`
}

// Status aggregates the graph's current state.
func (g *Graph) Status() Status {
	return Status{
		ID:         g.id,
		Nodes:      len(g.members),
		Producers:  len(g.producers),
		Consumers:  len(g.consumers),
		Storages:   len(g.storages),
		Generation: g.Generation(),
		Demand:     g.Demand(),
		Stored:     g.Stored(),
		Capacity:   g.Capacity(),
		Coverage:   g.coverage,
	}
}
