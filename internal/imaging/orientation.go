package imaging

import "image"

// Orient applies the EXIF orientation transform for code. Codes outside
// 2..8 return img unchanged.
func Orient(img image.Image, code int) image.Image {
	if code < 2 || code > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if code >= 5 {
		dw, dh = h, w
	}

	var at func(x, y int) (int, int)
	switch code {
	case 2: // mirror horizontal
		at = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3: // rotate 180
		at = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4: // mirror vertical
		at = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5: // transpose
		at = func(x, y int) (int, int) { return y, x }
	case 6: // rotate 90 clockwise
		at = func(x, y int) (int, int) { return y, h - 1 - x }
	case 7: // transverse
		at = func(x, y int) (int, int) { return w - 1 - y, h - 1 - x }
	case 8: // rotate 90 counter-clockwise
		at = func(x, y int) (int, int) { return w - 1 - y, x }
	}

	out := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			sx, sy := at(x, y)
			out.Set(x, y, img.At(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return out
}
