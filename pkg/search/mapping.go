package search

import (
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

const TypePanicRequest = "panic_request"

// BuildIndexMapping 面向紧急请求的索引映射
func BuildIndexMapping() *mapping.IndexMappingImpl {
	idx := mapping.NewIndexMapping()
	idx.DefaultAnalyzer = standard.Name
	idx.TypeField = "type"

	// 文本
	text := mapping.NewTextFieldMapping()
	text.Store = true
	text.Analyzer = standard.Name
	text.IncludeInAll = true

	// 关键词
	kw := mapping.NewTextFieldMapping()
	kw.Store = true
	kw.Analyzer = keyword.Name
	kw.IncludeInAll = false

	dt := mapping.NewDateTimeFieldMapping()
	dt.Store = true

	geo := mapping.NewGeoPointFieldMapping()
	geo.Store = true

	req := mapping.NewDocumentMapping()
	req.Dynamic = false
	req.AddFieldMappingsAt("address", text)
	req.AddFieldMappingsAt("description", text)
	req.AddFieldMappingsAt("status", kw)
	req.AddFieldMappingsAt("service_type", kw)
	req.AddFieldMappingsAt("phone", kw)
	req.AddFieldMappingsAt("group_id", kw)
	req.AddFieldMappingsAt("team_id", kw)
	req.AddFieldMappingsAt("created_at", dt)
	req.AddFieldMappingsAt("location", geo)
	idx.AddDocumentMapping(TypePanicRequest, req)

	def := mapping.NewDocumentMapping()
	def.Dynamic = false
	idx.DefaultMapping = def
	return idx
}
