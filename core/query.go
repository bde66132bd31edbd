// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the fluent query builder used by collection reads.
package core

// Query represents a fluent query builder for collection reads.
//
// It allows chaining of filtering, ordering and pagination. Fields are
// addressed by dot paths.
//
// Example:
//
//	docs, _ := users.Find(ctx, core.NewQuery().
//		Filter(func(q core.Filter) []*core.Condition {
//			return []*core.Condition{
//				q.Where("email").Like("%gmail.com"),
//				q.Where("profile.active").Eq(true),
//			}
//		}).
//		OrderBy("createdAt", -1).
//		Limit(10).
//		Offset(0))
type Query struct {
	where *Where
}

// NewQuery creates an empty Query, matching every document.
func NewQuery() *Query {
	return &Query{where: &Where{}}
}

// Where starts a condition on the field at path. The condition is not
// attached to the query; pass it to Filter.
//
// Example:
//
//	q.Where("age").Gt(18)
func (q *Query) Where(path string) *Condition {
	return Field(path)
}

// Filter builds a set of conditions using a functional style.
//
// The provided function receives a Filter scope. The returned conditions
// are combined with AND. A nil function clears the filter.
//
// Example:
//
//	q.Filter(func(f core.Filter) []*core.Condition {
//		return []*core.Condition{
//			f.Where("age").Gt(18),
//			f.Where("active").Eq(true),
//		}
//	})
func (q *Query) Filter(build func(Filter) []*Condition) *Query {
	if build == nil {
		q.where.Condition = nil
		return q
	}
	q.where.Condition = foldConditionsAnd(build(Filter{queryBuilder: q})...)
	return q
}

// Match sets condition as the filter.
func (q *Query) Match(condition *Condition) *Query {
	q.where.Condition = condition
	return q
}

// Filter provides the scope passed to the Filter function.
type Filter struct{ queryBuilder *Query }

// Where delegates to the parent query's Where method.
func (f Filter) Where(path string) *Condition {
	return f.queryBuilder.Where(path)
}

// OrderBy adds an ordering rule to the query.
//
// Field is the field path, and order is 1 (ASC) or -1 (DESC).
func (q *Query) OrderBy(field string, order int) *Query {
	q.where.Sort = append(q.where.Sort, Sort{FieldName: field, Order: order})
	return q
}

// Limit sets the maximum number of results to return.
func (q *Query) Limit(limit int) *Query {
	q.where.Limit = limit
	return q
}

// Offset sets the number of documents to skip before starting to return results.
func (q *Query) Offset(offset int) *Query {
	q.where.Offset = offset
	return q
}

// build returns a copy of the query options. A nil query matches everything.
func (q *Query) build() *Where {
	if q == nil || q.where == nil {
		return &Where{}
	}
	where := *q.where
	where.Sort = append([]Sort(nil), q.where.Sort...)
	return &where
}
