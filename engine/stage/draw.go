package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/batch"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	bgp "github.com/Carmen-Shannon/oxy2d/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy2d/engine/shader"
	"github.com/cogentcore/webgpu/wgpu"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Record layouts of the draw shaders' instance structs.
var (
	// ShapeLayout is ShapeInstance: position, size, uv rect, color, then depth and rotation.
	ShapeLayout = batch.Layout{Stride: 16, YField: 1}
	// GlyphLayout is GlyphInstance: position, size, uv rect, color, outline color, then depth, distance
	// range and outline width.
	GlyphLayout = batch.Layout{Stride: 20, YField: 1}
)

// Bind group names of the draw stage.
const (
	groupDrawCamera = "draw.camera"
	groupDrawAtlas  = "draw.atlas"
	groupDrawFont   = "draw.font"
)

// Sprite is a textured quad centred on X, Y.
type Sprite struct {
	X, Y          float32
	Width, Height float32
	// UV is the atlas region as u, v, width, height. The zero value samples the whole atlas.
	UV       [4]float32
	Color    common.Color
	Depth    float32
	Rotation float32
	// Transparent forces the back-to-front pass. Colors with alpha below one are always transparent.
	Transparent bool
}

// Circle is an antialiased filled circle centred on X, Y.
type Circle struct {
	X, Y        float32
	Radius      float32
	Color       common.Color
	Depth       float32
	Transparent bool
}

// Glyph is one MSDF glyph quad centred on X, Y.
type Glyph struct {
	X, Y          float32
	Width, Height float32
	UV            [4]float32
	Color         common.Color
	Outline       common.Color
	Depth         float32
	// Range is the distance field range in texels.
	Range        float32
	OutlineWidth float32
	Transparent  bool
}

// DrawStage renders sprites, circles and glyphs into the HDR scene with depth. Opaque buckets draw first
// with depth writes; transparent buckets are sorted by Y and drawn back to front without depth writes.
type DrawStage interface {
	Stage

	// GetBatch returns the node of one bucket for direct record writes.
	//
	// Parameters:
	//   - bucket: the bucket
	//
	// Returns:
	//   - *batch.Node: the bucket's node, with ShapeLayout or GlyphLayout records
	GetBatch(bucket batch.Bucket) *batch.Node

	Sprite(s Sprite)
	Circle(c Circle)
	Glyph(g Glyph)

	// Instances returns the number of records queued this frame.
	Instances() int

	// Bounds returns the smallest and largest instance Y queued this frame.
	//
	// Returns:
	//   - float32: minimum Y
	//   - float32: maximum Y
	//   - bool: false when nothing was queued
	Bounds() (float32, float32, bool)
}

// drawStage is the implementation of the DrawStage interface.
type drawStage struct {
	base

	spriteAtlas string
	fontAtlas   string
	maxVariants int

	acc batch.SortedAccumulator

	shapeShader  shader.Shader
	shapeModule  gpu.ShaderModule
	shapeLayouts []gpu.BindGroupLayout
	glyphShader  shader.Shader
	glyphModule  gpu.ShaderModule
	glyphLayouts []gpu.BindGroupLayout

	// variants caches pipelines by bucket name; evicted pipelines are released.
	variants *lru.Cache[string, pipeline.Pipeline]
	buckets  map[string]batch.Bucket
}

var _ DrawStage = &drawStage{}

// NewDrawStage creates the draw stage.
//
// Parameters:
//   - cfg: the draw configuration, for sort order and node capacity
//   - options: functional options
//
// Returns:
//   - DrawStage: the stage
func NewDrawStage(cfg config.Draw, options ...DrawStageBuilderOption) DrawStage {
	d := &drawStage{
		base:        base{name: NameDraw},
		spriteAtlas: TextureWhite,
		fontAtlas:   TextureWhite,
		maxVariants: len(batch.Buckets),
		buckets:     make(map[string]batch.Bucket, len(batch.Buckets)),
	}
	for _, opt := range options {
		opt(d)
	}
	for _, b := range batch.Buckets {
		d.buckets[b.String()] = b
	}
	d.acc = batch.NewSortedAccumulator("draw.instances", ShapeLayout, GlyphLayout,
		batch.WithSortOrder(cfg.SortOrder),
		batch.WithBucketCapacity(cfg.InitialCapacity),
	)
	return d
}

func (d *drawStage) CreateTargets(ctx *Context) error {
	if _, err := ctx.Registry.RegisterResolutionTexture(TextureSceneHDR, renderTarget(HDRFormat), false); err != nil {
		return err
	}
	_, err := ctx.Registry.RegisterResolutionTexture(TextureSceneDepth, renderTarget(DepthFormat), false)
	return err
}

func (d *drawStage) CreatePipeline(ctx *Context) error {
	d.ctx = ctx
	var err error
	if d.shapeShader, d.shapeModule, err = compile(ctx, "draw"); err != nil {
		return err
	}
	if d.glyphShader, d.glyphModule, err = compile(ctx, "glyph"); err != nil {
		return err
	}
	if d.shapeLayouts, err = pipeline.CreateLayouts(ctx.Device, d.shapeShader); err != nil {
		return err
	}
	if d.glyphLayouts, err = pipeline.CreateLayouts(ctx.Device, d.glyphShader); err != nil {
		return err
	}

	d.variants, err = lru.NewWithEvict(d.maxVariants, func(key string, p pipeline.Pipeline) {
		common.Logger().Debug("draw pipeline variant evicted", "variant", key)
		p.Release()
	})
	if err != nil {
		return err
	}
	for _, b := range batch.Buckets[:min(d.maxVariants, len(batch.Buckets))] {
		if _, err := d.variant(b.String()); err != nil {
			return err
		}
	}

	groups := []struct {
		provider bgp.BindGroupProvider
		layout   gpu.BindGroupLayout
	}{
		{bgp.NewBindGroupProvider(groupDrawCamera, bgp.WithBuffer(0, BufferCamera)), d.shapeLayouts[0]},
		{bgp.NewBindGroupProvider(groupDrawAtlas,
			bgp.WithTextureView(0, d.spriteAtlas),
			bgp.WithSampler(1, SamplerNearest)), d.shapeLayouts[1]},
		{bgp.NewBindGroupProvider(groupDrawFont,
			bgp.WithTextureView(0, d.fontAtlas),
			bgp.WithSampler(1, SamplerLinear)), d.glyphLayouts[1]},
	}
	for _, g := range groups {
		if _, err := g.provider.Register(ctx.Registry, g.layout); err != nil {
			return err
		}
	}
	return nil
}

// variant returns the pipeline of a bucket, creating it on a cache miss.
func (d *drawStage) variant(name string) (pipeline.Pipeline, error) {
	if p, ok := d.variants.Get(name); ok {
		return p, nil
	}
	b, ok := d.buckets[name]
	if !ok {
		return nil, fmt.Errorf("stage: unknown draw variant %q", name)
	}

	s, module, layouts, instance := d.shapeShader, d.shapeModule, d.shapeLayouts, "ShapeInstance"
	entry := "fs_quad"
	switch b.Primitive() {
	case "circle":
		entry = "fs_circle"
	case "glyph":
		s, module, layouts, instance = d.glyphShader, d.glyphModule, d.glyphLayouts, "GlyphInstance"
		entry = "fs_glyph"
	}
	opts := []pipeline.PipelineBuilderOption{
		pipeline.WithShader(s, entry),
		pipeline.WithInstanceStruct(instance),
		pipeline.WithLayouts(layouts...),
		pipeline.WithTargetFormat(HDRFormat),
		pipeline.WithDepthFormat(DepthFormat),
	}
	if b.Transparent() {
		opts = append(opts, pipeline.WithDepthWriteEnabled(false), pipeline.WithBlendState(&pipeline.AlphaBlend))
	}
	p := pipeline.NewPipeline("draw."+name, pipeline.PipelineTypeRender, opts...)
	if err := p.Create(d.ctx.Device, module); err != nil {
		return nil, err
	}
	d.variants.Add(name, p)
	return p, nil
}

// Bind implements batch.Binder for the sorted accumulator.
func (d *drawStage) Bind(pass gpu.RenderPass, key batch.StateKey) error {
	p, err := d.variant(key.Variant)
	if err != nil {
		return err
	}
	reg := d.ctx.Registry
	pass.SetPipeline(p.Render())
	pass.SetBindGroup(0, reg.BindGroup(groupDrawCamera).Group)
	atlas := groupDrawAtlas
	if d.buckets[key.Variant].Primitive() == "glyph" {
		atlas = groupDrawFont
	}
	pass.SetBindGroup(1, reg.BindGroup(atlas).Group)
	return nil
}

func (d *drawStage) GetBatch(bucket batch.Bucket) *batch.Node {
	return d.acc.GetBatch(bucket)
}

// bucketFor maps an opaque bucket to its transparent twin when the instance needs blending.
func bucketFor(opaque batch.Bucket, transparent bool, alpha float32) batch.Bucket {
	if transparent || alpha < 1 {
		return opaque + batch.TransparentQuad - batch.OpaqueQuad
	}
	return opaque
}

func (d *drawStage) Sprite(s Sprite) {
	uv := s.UV
	if uv == [4]float32{} {
		uv = [4]float32{0, 0, 1, 1}
	}
	r := d.acc.GetBatch(bucketFor(batch.OpaqueQuad, s.Transparent, s.Color[3])).Next()
	r[0], r[1], r[2], r[3] = s.X, s.Y, s.Width, s.Height
	copy(r[4:8], uv[:])
	copy(r[8:12], s.Color[:])
	r[12], r[13], r[14], r[15] = s.Depth, s.Rotation, 0, 0
}

func (d *drawStage) Circle(c Circle) {
	r := d.acc.GetBatch(bucketFor(batch.OpaqueCircle, c.Transparent, c.Color[3])).Next()
	r[0], r[1], r[2], r[3] = c.X, c.Y, c.Radius*2, c.Radius*2
	r[4], r[5], r[6], r[7] = 0, 0, 1, 1
	copy(r[8:12], c.Color[:])
	r[12], r[13], r[14], r[15] = c.Depth, 0, 0, 0
}

func (d *drawStage) Glyph(g Glyph) {
	r := d.acc.GetBatch(bucketFor(batch.OpaqueGlyph, g.Transparent, g.Color[3])).Next()
	r[0], r[1], r[2], r[3] = g.X, g.Y, g.Width, g.Height
	copy(r[4:8], g.UV[:])
	copy(r[8:12], g.Color[:])
	copy(r[12:16], g.Outline[:])
	r[16], r[17], r[18], r[19] = g.Depth, g.Range, g.OutlineWidth, 0
}

func (d *drawStage) Instances() int {
	return d.acc.Instances()
}

func (d *drawStage) Bounds() (float32, float32, bool) {
	var lo, hi float32
	found := false
	for _, b := range batch.Buckets {
		n := d.acc.GetBatch(b)
		layout := n.Layout()
		data := n.Data()
		for i := layout.YField; i < len(data); i += layout.Stride {
			y := data[i]
			if !found {
				lo, hi, found = y, y, true
				continue
			}
			lo, hi = min(lo, y), max(hi, y)
		}
	}
	return lo, hi, found
}

func (d *drawStage) Clear() {
	d.acc.Reset()
}

func (d *drawStage) UsePipeline(frame *Frame) error {
	reg := d.ctx.Registry
	draw := frame.Params.Draw
	if err := writeCamera(d.ctx.Device, reg.Buffer(BufferCamera), frame.Size, draw.Origin, frame.Params.CameraX, frame.Params.CameraY); err != nil {
		return fmt.Errorf("stage: write camera: %w", err)
	}

	pass := frame.Encoder.BeginRenderPass(&gpu.RenderPassDescriptor{
		Label: NameDraw,
		ColorAttachments: []gpu.ColorAttachment{{
			View:       reg.Texture(TextureSceneHDR).View,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clearColor(draw.ClearColor),
		}},
		Depth: &gpu.DepthAttachment{
			View:       reg.Texture(TextureSceneDepth).View,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: 1,
		},
		Timestamps: frame.PassTimestamps(NameDraw),
	})
	pass.SetIndexBuffer(reg.Buffer(BufferQuadIndices), wgpu.IndexFormatUint16, 0, uint64(len(quadIndices)*2))
	stats, err := d.acc.Flush(pass, d.ctx.Device, d, frame.Size)
	if endErr := pass.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return fmt.Errorf("stage: draw: %w", err)
	}
	frame.countDraws(NameDraw, stats.DrawCalls, stats.Instances)
	return nil
}

func (d *drawStage) Release() {
	d.acc.Release()
	if d.variants != nil {
		d.variants.Purge()
	}
	for _, l := range d.shapeLayouts {
		l.Release()
	}
	for _, l := range d.glyphLayouts {
		l.Release()
	}
	d.shapeLayouts, d.glyphLayouts = nil, nil
}
