package search

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	q "github.com/blevesearch/bleve/v2/search/query"
	"github.com/spf13/cast"
)

func buildQuery(req SearchRequest, defaultFields []string) q.Query {
	var must []q.Query

	if kw := strings.TrimSpace(req.Keyword); kw != "" {
		fields := req.SearchFields
		if len(fields) == 0 {
			fields = defaultFields
		}
		if len(fields) == 0 {
			must = append(must, bleve.NewMatchQuery(kw))
		} else {
			// 按字段 OR
			alts := make([]q.Query, 0, len(fields))
			for _, f := range fields {
				mq := bleve.NewMatchQuery(kw)
				mq.SetField(f)
				alts = append(alts, mq)
			}
			must = append(must, bleve.NewDisjunctionQuery(alts...))
		}
	}

	for f, vs := range req.MustTerms {
		var terms []q.Query
		for _, v := range vs {
			tq := bleve.NewTermQuery(v)
			tq.SetField(f)
			terms = append(terms, tq)
		}
		switch len(terms) {
		case 0:
		case 1:
			must = append(must, terms[0])
		default:
			must = append(must, bleve.NewDisjunctionQuery(terms...))
		}
	}

	for _, tr := range req.TimeRanges {
		if tr.From == nil && tr.To == nil {
			continue
		}
		rq := bleve.NewDateRangeQuery(derefTime(tr.From), derefTime(tr.To))
		rq.SetField(tr.Field)
		must = append(must, rq)
	}

	if req.Near != nil && req.Near.RadiusKm > 0 {
		gq := bleve.NewGeoDistanceQuery(req.Near.Lon, req.Near.Lat, cast.ToString(req.Near.RadiusKm)+"km")
		gq.SetField("location")
		must = append(must, gq)
	}

	if len(must) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(must...)
}
