// Package imagedir provides a scanner.Engine backed by image files.
//
// The root directory stands for the device list: every sub-directory is a
// camera and its PNG, JPEG and GIF files, in name order, are the frames
// that camera produces. An optional "label" file inside a camera directory
// supplies the camera label, and an optional "focus" file lists the focus
// modes the camera supports (all modes when absent). Frames are decoded with the gozxing QR reader
// at the frame rate the manager asks for.
package imagedir
