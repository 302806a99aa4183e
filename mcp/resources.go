package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lvillar/invtpl/schema"
	"github.com/lvillar/invtpl/service"
)

const templateScheme = "template://"

// RegisterDefaultResources adds the template resources backed by svc to the
// server: the listing at template://list and each definition at
// template://{id}.
func RegisterDefaultResources(s *Server, svc *service.Service) {
	s.AddResource(Resource{
		URI:         templateScheme + "list",
		Name:        "Invoice Templates",
		Description: "Summary of every template in the store",
		MIMEType:    "application/json",
		Handler: func(uri string) ([]ResourceContent, error) {
			defs, err := svc.List()
			if err != nil {
				return nil, fmt.Errorf("listing templates: %w", err)
			}
			data, err := json.MarshalIndent(summarize(defs), "", "  ")
			if err != nil {
				return nil, err
			}
			return []ResourceContent{{URI: uri, MIMEType: "application/json", Text: string(data)}}, nil
		},
	})

	s.AddResourceTemplate(ResourceTemplate{
		URITemplate: templateScheme + "{id}",
		Name:        "Invoice Template",
		Description: "JSON definition of the template with the given id",
		MIMEType:    "application/json",
		Handler: func(uri string) ([]ResourceContent, error) {
			id := strings.TrimPrefix(uri, templateScheme)
			def, err := svc.Load(id)
			if err != nil {
				return nil, err
			}
			if def == nil {
				return nil, fmt.Errorf("template %q not found", id)
			}
			data, err := schema.Encode(def)
			if err != nil {
				return nil, err
			}
			return []ResourceContent{{URI: uri, MIMEType: "application/json", Text: string(data)}}, nil
		},
	})
}
