package main

import (
	"fmt"
	"strconv"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/CasualCCodeReviewers/littlefs/rbyd"
)

// entryJSON is the wire form of one decoded entry.
type entryJSON struct {
	ID     int    `json:"id"`
	Tag    string `json:"tag"`
	Repr   string `json:"repr"`
	Weight int    `json:"weight"`
	Size   int    `json:"size"`
	Data   string `json:"data"`
}

type levelJSON struct {
	Bid    int         `json:"bid"`
	Weight int         `json:"weight"`
	Rid    int         `json:"rid"`
	Node   string      `json:"node"`
	Tags   []entryJSON `json:"tags"`
}

type resolutionJSON struct {
	Done    bool        `json:"done"`
	Corrupt bool        `json:"corrupt"`
	Bid     int         `json:"bid"`
	Weight  int         `json:"weight"`
	Rid     int         `json:"rid"`
	Node    string      `json:"node"`
	Tags    []entryJSON `json:"tags"`
	Path    []levelJSON `json:"path,omitempty"`
}

type keyJSON struct {
	Bid   int    `json:"bid"`
	Level int    `json:"level"`
	Rid   int    `json:"rid"`
	Tag   string `json:"tag"`
}

type edgeJSON struct {
	A     keyJSON `json:"a"`
	B     keyJSON `json:"b"`
	Depth int     `json:"depth"`
	Color string  `json:"color"`
}

func entryToJSON(e rbyd.Entry, first bool) entryJSON {
	w := e.Weight
	if !first {
		w = 0
	}
	return entryJSON{
		ID:     e.ID,
		Tag:    fmt.Sprintf("0x%04x", uint16(e.Tag)),
		Repr:   tagRepr(e.Tag, w, len(e.Data)),
		Weight: e.Weight,
		Size:   len(e.Data),
		Data:   fmt.Sprintf("%x", e.Data),
	}
}

func entriesToJSON(entries []rbyd.Entry) []entryJSON {
	out := make([]entryJSON, 0, len(entries))
	for i, e := range entries {
		out = append(out, entryToJSON(e, i == 0))
	}
	return out
}

func levelToJSON(lvl rbyd.PathLevel) levelJSON {
	return levelJSON{
		Bid:    lvl.Bid,
		Weight: lvl.Weight,
		Rid:    lvl.Rid,
		Node:   lvl.Node.Addr(),
		Tags:   entriesToJSON(lvl.Tags),
	}
}

func resolutionToJSON(res rbyd.Resolution, withPath bool) resolutionJSON {
	out := resolutionJSON{
		Done:    res.Done,
		Corrupt: res.Corrupt,
		Bid:     res.Bid,
		Weight:  res.Weight,
		Rid:     res.Rid,
		Node:    res.Node.Addr(),
		Tags:    entriesToJSON(res.Tags),
	}
	if withPath {
		for _, lvl := range res.Path {
			out.Path = append(out.Path, levelToJSON(lvl))
		}
	}
	return out
}

func edgesToJSON(edges []rbyd.BEdge) []edgeJSON {
	key := func(k rbyd.BKey) keyJSON {
		return keyJSON{
			Bid: k.Bid, Level: k.Level, Rid: k.Rid,
			Tag: fmt.Sprintf("0x%04x", uint16(k.Tag)),
		}
	}
	out := make([]edgeJSON, 0, len(edges))
	for _, e := range edges {
		out = append(out, edgeJSON{
			A: key(e.A), B: key(e.B), Depth: e.Depth, Color: string(e.Color),
		})
	}
	return out
}

func jsonError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// newServeApp wires the inspection API over an open tree. Split from the
// command so tests can drive the app directly.
func newServeApp(bt *rbyd.BTree) *fiber.App {
	app := fiber.New()

	app.Get("/v1/btree", func(c *fiber.Ctx) error {
		root := bt.Root
		return c.JSON(fiber.Map{
			"addr":   root.Addr(),
			"rev":    root.Rev,
			"weight": root.Weight,
			"ok":     root.Ok(),
		})
	})

	app.Get("/v1/btree/entries", func(c *fiber.Ctx) error {
		depth := c.QueryInt("depth", 0)
		var leaves []resolutionJSON
		corrupted, err := bt.Traverse(c.Context(), depth, func(res rbyd.Resolution) error {
			leaves = append(leaves, resolutionToJSON(res, false))
			return nil
		})
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(fiber.Map{"corrupted": corrupted, "entries": leaves})
	})

	app.Get("/v1/btree/resolve/:bid", func(c *fiber.Ctx) error {
		bid, err := strconv.Atoi(c.Params("bid"))
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, err)
		}
		res, err := bt.Resolve(c.Context(), bid, c.QueryInt("depth", 0))
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(resolutionToJSON(res, true))
	})

	app.Get("/v1/btree/shape", func(c *fiber.Ctx) error {
		depth := c.QueryInt("depth", 0)
		inner := c.QueryBool("inner", false)
		var edges []rbyd.BEdge
		var tdepth int
		var err error
		if c.Query("kind", "tree") == "btree" {
			edges, tdepth, err = bt.NodeShape(c.Context(), depth, inner)
		} else {
			edges, tdepth, err = bt.Shape(c.Context(), depth, inner)
		}
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(fiber.Map{"depth": tdepth, "edges": edgesToJSON(edges)})
	})

	app.Get("/v1/node/entries", func(c *fiber.Ctx) error {
		addr, err := rbyd.ParseAddr(c.Query("addr", "0"))
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, err)
		}
		node, err := bt.Reader().Fetch(c.Context(), addr)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(fiber.Map{
			"addr":    node.Addr(),
			"rev":     node.Rev,
			"weight":  node.Weight,
			"ok":      node.Ok(),
			"entries": entriesToJSON(node.Entries()),
		})
	})

	return app
}

func newServeCmd(o *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve disk [roots...]",
		Short: "Serve a JSON inspection API over the B-tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bt, closeDev, err := openBTree(cmd, args[0], args[1:], o)
			if err != nil {
				return err
			}
			defer closeDev()

			log := logger.Sugar.WithServiceName("dbgbtree")
			log.Infof("listening on %s", listen)
			return newServeApp(bt).Listen(listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":3000", "address to listen on")
	return cmd
}
