package pipeline

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/blobstore"
)

//go:embed templates/*.json
var templates embed.FS

var ErrNoTemplate = errors.New("no pipeline template")

// Parameter names shared by the bundled templates.
const (
	ParamRTSPURL      = "rtspUrl"
	ParamRTSPUserName = "rtspUserName"
	ParamRTSPPassword = "rtspPassword"
	ParamAssetName    = "assetName"
)

// Descriptor is a device's pipeline definition pair.
type Descriptor struct {
	TopologyDocument map[string]any
	InstanceDocument map[string]any
	TopologyName     string
	InstanceName     string
	AssetName        string
}

type document struct {
	PipelineTopology map[string]any `json:"pipelineTopology"`
	LivePipeline     map[string]any `json:"livePipeline"`
}

// LoadDescriptor builds the descriptor for a camera. The document named by
// info.PipelineTopology is read from blob storage; when it is absent the template
// bundled for info.ModelID is used.
func LoadDescriptor(ctx context.Context, blobs blobstore.Lookup, info models.CameraInfo) (*Descriptor, error) {
	var raw map[string]any
	if blobs != nil && info.PipelineTopology != "" {
		var err error
		if raw, err = blobs.GetDocument(ctx, info.PipelineTopology); err != nil {
			return nil, fmt.Errorf("load pipeline document %s: %w", info.PipelineTopology, err)
		}
	}

	var doc document
	if raw != nil {
		if err := remarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse pipeline document %s: %w", info.PipelineTopology, err)
		}
	} else {
		data, err := templates.ReadFile("templates/" + info.ModelID + ".json")
		if err != nil {
			return nil, fmt.Errorf("%w for model %q", ErrNoTemplate, info.ModelID)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", info.ModelID, err)
		}
	}

	return newDescriptor(doc, info.DeviceID)
}

func newDescriptor(doc document, deviceID string) (*Descriptor, error) {
	if doc.PipelineTopology == nil || doc.LivePipeline == nil {
		return nil, errors.New("pipeline document needs pipelineTopology and livePipeline")
	}
	templateName, _ := doc.PipelineTopology["name"].(string)
	if templateName == "" {
		return nil, errors.New("pipeline topology has no name")
	}

	d := &Descriptor{
		TopologyDocument: doc.PipelineTopology,
		InstanceDocument: doc.LivePipeline,
		TopologyName:     templateName + "-" + deviceID,
		InstanceName:     deviceID,
	}
	d.TopologyDocument["name"] = d.TopologyName
	d.InstanceDocument["name"] = d.InstanceName
	props := properties(d.InstanceDocument)
	props["topologyName"] = d.TopologyName
	return d, nil
}

// InjectParameters sets named values in the instance parameter list and returns the
// names that have no slot there.
func (d *Descriptor) InjectParameters(params map[string]any) (unmatched []string) {
	props := properties(d.InstanceDocument)
	list, _ := props["parameters"].([]any)

	slots := make(map[string]map[string]any, len(list))
	for _, item := range list {
		if p, ok := item.(map[string]any); ok {
			if name, ok := p["name"].(string); ok {
				slots[name] = p
			}
		}
	}

	for name, value := range params {
		slot, ok := slots[name]
		if !ok {
			unmatched = append(unmatched, name)
			continue
		}
		slot["value"] = fmt.Sprint(value)
	}
	return unmatched
}

// Parameter returns the current value of an instance parameter.
func (d *Descriptor) Parameter(name string) (string, bool) {
	list, _ := properties(d.InstanceDocument)["parameters"].([]any)
	for _, item := range list {
		p, ok := item.(map[string]any)
		if !ok || p["name"] != name {
			continue
		}
		v, _ := p["value"].(string)
		return v, true
	}
	return "", false
}

func properties(doc map[string]any) map[string]any {
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		props = map[string]any{}
		doc["properties"] = props
	}
	return props
}

func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
