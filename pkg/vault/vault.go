// Package vault 把一组命名数组保存为一个容器文件，并从容器文件中重新打开
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"zarrvault/pkg/chunkstore"
	"zarrvault/pkg/container"
	"zarrvault/pkg/converter"
	"zarrvault/pkg/staging"
	"zarrvault/pkg/zarr"
)

// FormatName 写在文档树中，用于识别文档
const FormatName = "zarrvault/1"

// Tree 是容器中的文档树
type Tree struct {
	Format string                     `cbor:"format" json:"format"`
	Arrays map[string]*converter.Node `cbor:"arrays" json:"arrays"`
}

// Vault 负责保存和打开文档，同一个 Vault 的多次保存共享稳定 key
type Vault struct {
	conv        *converter.Converter
	compression string
}

// Option 配置 Vault
type Option func(*vaultConfig)

type vaultConfig struct {
	compression string
	factory     staging.Factory
}

// WithCompression 设置 block 压缩算法
func WithCompression(name string) Option {
	return func(c *vaultConfig) { c.compression = name }
}

// WithStagingFactory 设置内部存储暂存区的底层存储
func WithStagingFactory(f staging.Factory) Option {
	return func(c *vaultConfig) { c.factory = f }
}

func New(opts ...Option) (*Vault, error) {
	cfg := vaultConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !container.ValidCompression(cfg.compression) {
		return nil, fmt.Errorf("unsupported compression %q", cfg.compression)
	}
	var convOpts []converter.Option
	if cfg.factory != nil {
		convOpts = append(convOpts, converter.WithStagingFactory(cfg.factory))
	}
	return &Vault{
		conv:        converter.New(convOpts...),
		compression: cfg.compression,
	}, nil
}

// Document 是一个已打开的文档
type Document struct {
	Arrays map[string]*zarr.Array
	file   *container.File
}

// File 返回文档所在的容器
func (d *Document) File() *container.File { return d.file }

// Names 返回排序后的数组名
func (d *Document) Names() []string {
	return sortedNames(d.Arrays)
}

// Close 释放所有数组的暂存区
func (d *Document) Close() error {
	var errs []error
	for _, arr := range d.Arrays {
		errs = append(errs, arr.Close())
	}
	return errors.Join(errs...)
}

type saveConfig struct {
	previous *container.File
}

// SaveOption 配置一次保存
type SaveOption func(*saveConfig)

// WithPrevious 复用上一个文档中的 block 下标
func WithPrevious(doc *Document) SaveOption {
	return func(c *saveConfig) {
		if doc != nil {
			c.previous = doc.file
		}
	}
}

// Save 把 arrays 写到 path
// 需要转换的数组会在 arrays 中被替换为转换后的内部存储数组，之后的修改和保存都应当使用新数组
func (v *Vault) Save(ctx context.Context, path string, arrays map[string]*zarr.Array, opts ...SaveOption) error {
	cfg := saveConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	_, err := v.save(ctx, path, arrays, cfg)
	return err
}

// Update 把文档原地写回它自己的文件，并重新加载
func (v *Vault) Update(ctx context.Context, doc *Document) error {
	f, err := v.save(ctx, doc.file.URI(), doc.Arrays, saveConfig{previous: doc.file})
	if err != nil {
		return err
	}
	doc.file = f
	return nil
}

func (v *Vault) save(ctx context.Context, path string, arrays map[string]*zarr.Array, cfg saveConfig) (*container.File, error) {
	// 0. 目标文件正是某些数组读取的来源：旧偏移写完后全部失效
	// 没有显式传 WithPrevious 时用旧文件作为 previous，保证 block 下标不变
	target, err := container.FileURI(path)
	if err != nil {
		return nil, err
	}
	overwrite := cfg.previous != nil && samePath(cfg.previous.URI(), path)
	if readsFrom(arrays, target) {
		overwrite = true
		if cfg.previous == nil {
			if cfg.previous, err = container.Open(ctx, target); err != nil {
				return nil, fmt.Errorf("open document being overwritten: %w", err)
			}
		}
	}

	w := container.NewWriter(
		container.WithCompression(v.compression),
		container.WithPrevious(cfg.previous),
	)

	// 1. 按名字顺序转换，保证同样的输入得到同样的下标
	tree := Tree{Format: FormatName, Arrays: make(map[string]*converter.Node, len(arrays))}
	converted := make(map[string]*zarr.Array, len(arrays))
	for _, name := range sortedNames(arrays) {
		node, arr, err := v.conv.ToNode(ctx, arrays[name], w)
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", name, err)
		}
		tree.Arrays[name] = node
		converted[name] = arr
	}

	// 2. 写文件 (失败时不会留下半个文档)
	if err := w.WriteFile(ctx, path, tree); err != nil {
		return nil, err
	}
	for name, arr := range converted {
		arrays[name] = arr
	}
	slog.Info("document saved", slog.String("path", path), slog.Int("arrays", len(arrays)), slog.Int("blocks", w.NumBlocks()))

	// 3. 原地覆盖时旧文件的偏移已经失效，重新加载内部数组
	if overwrite {
		return v.reload(ctx, path, tree, arrays)
	}
	return nil, nil
}

func (v *Vault) reload(ctx context.Context, path string, tree Tree, arrays map[string]*zarr.Array) (*container.File, error) {
	f, err := container.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	for name, node := range tree.Arrays {
		if !node.IsInternal() {
			continue
		}
		arr, err := v.conv.FromNode(ctx, node, f)
		if err != nil {
			return nil, fmt.Errorf("reload array %q: %w", name, err)
		}
		if old, ok := arrays[name].ChunkStore().(*chunkstore.Store); ok {
			old.Close()
		}
		arrays[name] = arr
	}
	return f, nil
}

// Open 打开 path 处的文档
func (v *Vault) Open(ctx context.Context, path string) (*Document, error) {
	f, err := container.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	var tree Tree
	if err := f.Tree(&tree); err != nil {
		return nil, fmt.Errorf("decode document tree: %w", err)
	}
	if tree.Format != FormatName {
		return nil, fmt.Errorf("%w: unknown document format %q", container.ErrNotContainer, tree.Format)
	}

	doc := &Document{Arrays: make(map[string]*zarr.Array, len(tree.Arrays)), file: f}
	for _, name := range sortedNames(tree.Arrays) {
		arr, err := v.conv.FromNode(ctx, tree.Arrays[name], f)
		if err != nil {
			doc.Close()
			return nil, fmt.Errorf("array %q: %w", name, err)
		}
		doc.Arrays[name] = arr
	}
	return doc, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// readsFrom 判断是否有数组的 chunk 仍然从 uri 读取
func readsFrom(arrays map[string]*zarr.Array, uri string) bool {
	for _, arr := range arrays {
		if cs, ok := arr.ChunkStore().(*chunkstore.Store); ok && cs.ReadsFrom(uri) {
			return true
		}
	}
	return false
}

func samePath(a, b string) bool {
	pa, err1 := filepath.Abs(a)
	pb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && pa == pb
}
