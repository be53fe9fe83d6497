package graph

import (
	"sync"
	"testing"

	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appleStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := NewStore(opts...)
	s.AddEntity(types.Entity{ID: "Apple", Type: "Company", Description: "tech co"})
	s.AddEntity(types.Entity{ID: "iPhone", Type: "Product", Description: "phone"})
	s.AddEntity(types.Entity{ID: "Mac", Type: "Product", Description: "computer"})
	require.NoError(t, s.AddRelationship(types.Relationship{SourceID: "Apple", TargetID: "iPhone", Label: "Produces", Description: "first"}))
	require.NoError(t, s.AddRelationship(types.Relationship{SourceID: "iPhone", TargetID: "Apple", Label: "MadeBy", Description: "second"}))
	require.NoError(t, s.AddRelationship(types.Relationship{SourceID: "Apple", TargetID: "Mac", Label: "Produces", Description: "third"}))
	return s
}

func TestAddEntity_KeepFirst(t *testing.T) {
	s := NewStore()

	assert.True(t, s.AddEntity(types.Entity{ID: "Apple", Type: "Company", Description: "tech co"}))
	assert.False(t, s.AddEntity(types.Entity{ID: "Apple", Type: "Fruit", Description: "a fruit"}))

	e, err := s.Entity("Apple")
	require.NoError(t, err)
	assert.Equal(t, types.Entity{ID: "Apple", Type: "Company", Description: "tech co"}, e)
	assert.Equal(t, 1, s.NumEntities())
}

func TestAddEntity_Concatenate(t *testing.T) {
	s := NewStore(WithMergePolicy(Concatenate))

	s.AddEntity(types.Entity{ID: "Apple", Type: "Company", Description: "tech co"})
	s.AddEntity(types.Entity{ID: "Apple", Type: "Fruit", Description: "makes phones"})
	s.AddEntity(types.Entity{ID: "Apple", Type: "Company", Description: "tech co"})
	s.AddEntity(types.Entity{ID: "Apple", Type: "Company"})

	e, err := s.Entity("Apple")
	require.NoError(t, err)
	assert.Equal(t, "Company", e.Type)
	assert.Equal(t, "tech co makes phones", e.Description)
}

func TestParseMergePolicy(t *testing.T) {
	p, err := ParseMergePolicy("")
	require.NoError(t, err)
	assert.Equal(t, KeepFirst, p)

	p, err = ParseMergePolicy("Concatenate")
	require.NoError(t, err)
	assert.Equal(t, Concatenate, p)

	_, err = ParseMergePolicy("longest")
	assert.Error(t, err)
}

func TestAddRelationship_Consistency(t *testing.T) {
	s := appleStore(t)

	err := s.AddRelationship(types.Relationship{SourceID: "Apple", TargetID: "Cupertino", Label: "LocatedIn"})
	require.ErrorIs(t, err, ErrGraphConsistency)
	assert.Contains(t, err.Error(), "(Apple)-[LocatedIn]->(Cupertino)")
	assert.Equal(t, 3, s.NumRelationships())
	assert.NoError(t, s.Validate())
}

func TestMultiEdgesAndNeighbors(t *testing.T) {
	s := appleStore(t)

	assert.Equal(t, 3, s.NumRelationships())
	assert.Equal(t, []string{"Mac", "iPhone"}, s.Neighbors("Apple"))
	assert.Equal(t, []string{"Apple"}, s.Neighbors("iPhone"))

	incident := s.IncidentRelationships("iPhone")
	require.Len(t, incident, 2)
	assert.Equal(t, "first", incident[0].Description)
	assert.Equal(t, "second", incident[1].Description)

	assert.Equal(t, []string{"Apple", "iPhone", "Mac"}, ids(s.Entities()))
}

func TestSelfLoop(t *testing.T) {
	s := appleStore(t)
	require.NoError(t, s.AddRelationship(types.Relationship{SourceID: "Mac", TargetID: "Mac", Label: "Runs"}))

	assert.Len(t, s.IncidentRelationships("Mac"), 2)
	assert.Equal(t, []string{"Apple", "Mac"}, s.Neighbors("Mac"))

	sg := s.ToSimpleGraph()
	assert.Equal(t, 2, sg.NumEdges())
}

func TestFreeze(t *testing.T) {
	s := appleStore(t)
	s.Freeze()

	assert.True(t, s.Frozen())
	assert.False(t, s.AddEntity(types.Entity{ID: "Watch"}))
	assert.ErrorIs(t, s.AddRelationship(types.Relationship{SourceID: "Apple", TargetID: "Mac"}), ErrFrozen)
	assert.Equal(t, 3, s.NumEntities())
	assert.Equal(t, 3, s.NumRelationships())
}

func TestEntityNotFound(t *testing.T) {
	_, err := NewStore().Entity("nope")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestToSimpleGraph(t *testing.T) {
	sg := appleStore(t).ToSimpleGraph()

	assert.Equal(t, []string{"Apple", "Mac", "iPhone"}, sg.Names())
	assert.Equal(t, 3, sg.NumNodes())
	assert.Equal(t, 2, sg.NumEdges())

	attrs, ok := sg.Edge("Apple", "iPhone")
	require.True(t, ok)
	assert.Equal(t, EdgeAttrs{Label: "MadeBy", Description: "second"}, attrs)

	attrs, ok = sg.Edge("iPhone", "Apple")
	require.True(t, ok)
	assert.Equal(t, "second", attrs.Description)

	_, ok = sg.Edge("Mac", "iPhone")
	assert.False(t, ok)

	apple, ok := sg.ID("Apple")
	require.True(t, ok)
	assert.Equal(t, "Apple", sg.Name(apple))
	assert.Equal(t, []int64{1, 2}, sg.Neighbors(apple))
	assert.Equal(t, 2, sg.Undirected().From(apple).Len())
}

func TestToSimpleGraph_Deterministic(t *testing.T) {
	a := appleStore(t).ToSimpleGraph()
	b := appleStore(t).ToSimpleGraph()
	assert.Equal(t, a.Names(), b.Names())
	assert.Equal(t, a.attrs, b.attrs)
}

func TestConcurrentReads(t *testing.T) {
	s := appleStore(t)
	s.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Neighbors("Apple")
			_ = s.IncidentRelationships("iPhone")
			_ = s.ToSimpleGraph()
		}()
	}
	wg.Wait()
}

func ids(es []types.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}
