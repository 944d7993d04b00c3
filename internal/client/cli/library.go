package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/survivalcodex/codex/internal/client/models"
)

func (a *App) techniques(ctx context.Context, args []string) error {
	list, err := a.catalog.Techniques(ctx)
	if err != nil {
		return err
	}
	marks := a.markers(ctx)
	for _, t := range list {
		if len(args) > 0 && !strings.EqualFold(t.Category, args[0]) {
			continue
		}
		fmt.Fprintf(a.out, "%-4s %-2s [%s/%s] %s\n", t.ID, marks[t.ID], t.Category, t.Difficulty, t.Title)
	}
	return nil
}

// markers flags bookmarked (*) and downloaded (d) techniques. Failures only
// cost the markers.
func (a *App) markers(ctx context.Context) map[string]string {
	out := map[string]string{}
	if ids, err := a.library.Bookmarks.IDs(ctx); err == nil {
		for _, id := range ids {
			out[id] += "*"
		}
	}
	if ids, err := a.library.Downloads.IDs(ctx); err == nil {
		for _, id := range ids {
			out[id] += "d"
		}
	}
	return out
}

// technique prefers downloaded content so sheets open offline.
func (a *App) technique(ctx context.Context, id string) (models.Technique, error) {
	if t, ok, err := a.library.Downloads.Get(ctx, id); err == nil && ok {
		return t, nil
	}
	t, ok, err := a.catalog.Find(ctx, id)
	if err != nil {
		return models.Technique{}, err
	}
	if !ok {
		return models.Technique{}, fmt.Errorf("technique %q not found", id)
	}
	return t, nil
}

func (a *App) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	t, err := a.technique(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n%s · %s · %s\n\n%s\n", t.Title, t.Category, t.Difficulty, t.TimeEstimate, t.Description)
	if len(t.Steps) > 0 {
		fmt.Fprintln(a.out, "\nSteps:")
		for i, s := range t.Steps {
			fmt.Fprintf(a.out, "  %d. %s\n", i+1, s)
		}
	}
	printList(a, "Warnings", t.Warnings)
	printList(a, "Tips", t.Tips)
	return nil
}

func printList(a *App, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(a.out, "\n%s:\n", title)
	for _, s := range items {
		fmt.Fprintf(a.out, "  - %s\n", s)
	}
}

func (a *App) bookmark(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	added, err := a.library.Bookmarks.Toggle(ctx, args[0])
	if err != nil {
		return err
	}
	if added {
		fmt.Fprintf(a.out, "Bookmarked %s.\n", args[0])
	} else {
		fmt.Fprintf(a.out, "Removed bookmark %s.\n", args[0])
	}
	return nil
}

func (a *App) bookmarks(ctx context.Context, _ []string) error {
	ids, err := a.library.Bookmarks.IDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(a.out, "No bookmarks yet.")
		return nil
	}
	for _, id := range ids {
		title := "?"
		if t, err := a.technique(ctx, id); err == nil {
			title = t.Title
		}
		fmt.Fprintf(a.out, "%-4s %s\n", id, title)
	}
	return nil
}

func (a *App) download(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	t, ok, err := a.catalog.Find(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("technique %q not found", args[0])
	}
	if err := a.library.Downloads.Add(ctx, t); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Downloaded %q for offline use.\n", t.Title)
	return nil
}

func (a *App) undownload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.library.Downloads.Remove(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed download %s.\n", args[0])
	return nil
}

func (a *App) downloads(ctx context.Context, _ []string) error {
	items, err := a.library.Downloads.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "No downloads yet.")
		return nil
	}
	for _, t := range items {
		fmt.Fprintf(a.out, "%-4s %s\n", t.ID, t.Title)
	}
	return nil
}

func (a *App) clearDownloads(ctx context.Context, _ []string) error {
	if !confirm(a.reader, "Remove every download?", a.out) {
		return nil
	}
	if err := a.library.Downloads.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "All downloads removed.")
	return nil
}
